package application

import (
	"sync"
	"time"
)

// runReportCache retains recent recurring-run reports so the HTTP layer can
// serve "what happened on the last run" without re-reading storage. Entries
// expire after a TTL and the cache holds a bounded number of runs.
type runReportCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]runReportEntry
	latest     string
}

type runReportEntry struct {
	report    RecurringRunResult
	expiresAt time.Time
}

func newRunReportCache(ttl time.Duration, maxEntries int, now func() time.Time) *runReportCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 32
	}
	if now == nil {
		now = time.Now
	}
	return &runReportCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]runReportEntry),
	}
}

// Get returns the report for a specific run id if it has not expired.
func (c *runReportCache) Get(runID string) (RecurringRunResult, bool) {
	if c == nil {
		return RecurringRunResult{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[runID]
	c.mu.RUnlock()
	if !ok {
		return RecurringRunResult{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, runID)
		c.mu.Unlock()
		return RecurringRunResult{}, false
	}
	return cloneRunReport(entry.report), true
}

// Latest returns the most recently stored report, if still cached.
func (c *runReportCache) Latest() (RecurringRunResult, bool) {
	if c == nil {
		return RecurringRunResult{}, false
	}
	c.mu.RLock()
	latest := c.latest
	c.mu.RUnlock()
	if latest == "" {
		return RecurringRunResult{}, false
	}
	return c.Get(latest)
}

// Store records a finished run report.
func (c *runReportCache) Store(report RecurringRunResult) {
	if c == nil || report.RunID == "" {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[report.RunID] = runReportEntry{report: cloneRunReport(report), expiresAt: expiry}
	c.latest = report.RunID
}

func (c *runReportCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *runReportCache) evictOneLocked() {
	oldest := ""
	var oldestExpiry time.Time
	for key, entry := range c.entries {
		if oldest == "" || entry.expiresAt.Before(oldestExpiry) {
			oldest = key
			oldestExpiry = entry.expiresAt
		}
	}
	if oldest != "" {
		delete(c.entries, oldest)
	}
}

func cloneRunReport(report RecurringRunResult) RecurringRunResult {
	cloned := report
	cloned.Conflicts = append([]string(nil), report.Conflicts...)
	cloned.Errors = append([]string(nil), report.Errors...)
	return cloned
}
