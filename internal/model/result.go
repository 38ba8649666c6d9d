package model

import (
	"sync"
	"time"
)

// Statistics holds the counters of a scan.
// TotalProcessed always equals WorkingCount + BrokenCount + ErrorCount.
type Statistics struct {
	TotalProcessed    int `json:"total_urls_processed"`
	WorkingCount      int `json:"working_links_count"`
	BrokenCount       int `json:"broken_links_count"`
	ErrorCount        int `json:"error_links_count"`
	VisitedPagesCount int `json:"visited_pages_count"`
}

// ScanResult is the outcome of a scan. Records are kept in validation order
// within each status sequence. A ScanResult returned by LiveResult.Finish
// must not be modified.
type ScanResult struct {
	StartDomain string     `json:"start_domain"`
	Config      ScanConfig `json:"config"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`

	// Cancelled is true when the scan was stopped before its frontier was exhausted.
	Cancelled bool `json:"cancelled"`

	Statistics Statistics   `json:"statistics"`
	Working    []LinkRecord `json:"working_links"`
	Broken     []LinkRecord `json:"broken_links"`
	Errors     []LinkRecord `json:"error_links"`
}

// Records returns all records: working, then broken, then error.
func (r *ScanResult) Records() []LinkRecord {
	out := make([]LinkRecord, 0, len(r.Working)+len(r.Broken)+len(r.Errors))
	out = append(out, r.Working...)
	out = append(out, r.Broken...)
	out = append(out, r.Errors...)
	return out
}

// Duration returns the wall time of the scan, or zero while it is running.
func (r *ScanResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// HasProblems reports whether any broken or error link was found.
func (r *ScanResult) HasProblems() bool {
	return r.Statistics.BrokenCount > 0 || r.Statistics.ErrorCount > 0
}

// Finished reports whether EndTime has been set.
func (r *ScanResult) Finished() bool {
	return !r.EndTime.IsZero()
}

// add appends rec to the sequence selected by its status and updates the
// counters in the same step.
func (r *ScanResult) add(rec LinkRecord) {
	switch rec.Status {
	case StatusWorking:
		r.Working = append(r.Working, rec)
		r.Statistics.WorkingCount++
	case StatusBroken:
		r.Broken = append(r.Broken, rec)
		r.Statistics.BrokenCount++
	default:
		rec.Status = StatusError
		r.Errors = append(r.Errors, rec)
		r.Statistics.ErrorCount++
	}
	r.Statistics.TotalProcessed++
	if rec.Kind == KindPage {
		r.Statistics.VisitedPagesCount++
	}
}

func (r *ScanResult) clone() *ScanResult {
	c := *r
	c.Working = append([]LinkRecord(nil), r.Working...)
	c.Broken = append([]LinkRecord(nil), r.Broken...)
	c.Errors = append([]LinkRecord(nil), r.Errors...)
	return &c
}

// LiveResult guards a ScanResult that a running scan is still writing.
// It is safe for one writer and any number of concurrent readers.
type LiveResult struct {
	mu     sync.RWMutex
	result ScanResult
}

// NewLiveResult returns an empty LiveResult for cfg.
func NewLiveResult(cfg ScanConfig) *LiveResult {
	return &LiveResult{result: ScanResult{Config: cfg}}
}

// Begin records the normalized start domain and the start time.
func (l *LiveResult) Begin(startDomain string, start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result.StartDomain = startDomain
	l.result.StartTime = start
}

// Add appends a record. It is ignored once Finish has been called.
func (l *LiveResult) Add(rec LinkRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.result.Finished() {
		return
	}
	l.result.add(rec)
}

// Snapshot returns a deep copy of the current state.
func (l *LiveResult) Snapshot() *ScanResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.result.clone()
}

// Finish sets EndTime and returns the frozen result. Only the first call
// has an effect; later calls return the same values.
func (l *LiveResult) Finish(end time.Time, cancelled bool) *ScanResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.result.Finished() {
		if l.result.StartTime.IsZero() {
			l.result.StartTime = end
		}
		l.result.EndTime = end
		l.result.Cancelled = cancelled
	}
	return l.result.clone()
}
