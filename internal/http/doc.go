// Package http provides HTTP handlers and middleware for the facility audit API.
//
// The router exposes the following endpoints:
//   - POST /login: issues a session token. Body: {"email","password"}. The token
//     is also surfaced via the `X-Session-Token` header and a `session_token`
//     cookie. POST /logout revokes the current token and clears the cookie.
//   - GET /users, POST /users, PUT /users/{id}, DELETE /users/{id}:
//     administrator controlled user management exchanging the `userDTO` payload
//     defined in user_handler.go.
//   - GET /sites, POST /sites, GET/PUT/DELETE /sites/{id}: facility tree
//     management. GET /sites/{id}/checks and POST /sites/{id}/checks manage the
//     checklist items of a leaf site; DELETE /checks/{id} removes one item.
//   - GET /breaks, POST /breaks, PUT /breaks/{id}, DELETE /breaks/{id}:
//     unavailability windows. Mutations respond with the conflict resolution
//     report triggered by the change.
//   - GET /audits, GET /audits/{id}, DELETE /audits/{id}: audit listing and
//     administration. POST /audits/{id}/start, POST /audits/{id}/results and
//     POST /audits/{id}/complete drive the audit lifecycle.
//   - POST /audit-plans/preview and POST /audit-plans/commit: two-phase audit
//     planning. POST /audit-plans runs both phases in one request.
//   - GET/POST /audit-plans/recurring, PATCH/DELETE /audit-plans/recurring/{id}:
//     recurring schedule templates. POST /audit-plans/recurring/run executes one
//     driver pass; GET /audit-plans/recurring/last-run returns its cached report.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
