package crawler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"toolharvest/internal/logger"
)

// VisitResult records one navigation attempt.
type VisitResult struct {
	Timestamp time.Time     `json:"timestamp"`
	URL       string        `json:"url"`
	Error     string        `json:"error,omitempty"`
	Attempt   int           `json:"attempt"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
}

// VisitTracker keeps the attempt log of every page visit. Safe for
// concurrent use by extraction workers.
type VisitTracker struct {
	mu         sync.Mutex
	attemptLog map[string][]VisitResult
}

// NewVisitTracker creates an empty tracker.
func NewVisitTracker() *VisitTracker {
	return &VisitTracker{attemptLog: make(map[string][]VisitResult)}
}

// RecordAttempt records the result of a navigation attempt.
func (vt *VisitTracker) RecordAttempt(url string, err error, duration time.Duration) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	vt.attemptLog[url] = append(vt.attemptLog[url], VisitResult{
		URL:       url,
		Attempt:   len(vt.attemptLog[url]) + 1,
		Success:   err == nil,
		Error:     errMsg,
		Timestamp: time.Now(),
		Duration:  duration,
	})
}

// GetAttemptLog returns the attempt log for a URL.
func (vt *VisitTracker) GetAttemptLog(url string) []VisitResult {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	return append([]VisitResult(nil), vt.attemptLog[url]...)
}

// FailedURLs returns the URLs whose last attempt failed, sorted.
func (vt *VisitTracker) FailedURLs() []string {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	var failed []string

	for url, results := range vt.attemptLog {
		if !results[len(results)-1].Success {
			failed = append(failed, url)
		}
	}

	sort.Strings(failed)

	return failed
}

// GetVisitStats returns statistics about navigation attempts.
func (vt *VisitTracker) GetVisitStats() VisitStats {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	stats := VisitStats{TotalURLs: len(vt.attemptLog)}

	for _, results := range vt.attemptLog {
		stats.TotalAttempts += len(results)

		urlSuccess := false

		for _, result := range results {
			if result.Success {
				stats.SuccessfulAttempts++
				urlSuccess = true
			} else {
				stats.FailedAttempts++
			}
		}

		if urlSuccess {
			stats.SuccessfulURLs++
		} else {
			stats.FailedURLs++
		}
	}

	return stats
}

// VisitStats contains statistics about navigation attempts.
type VisitStats struct {
	TotalURLs          int `json:"total_urls"`
	SuccessfulURLs     int `json:"successful_urls"`
	FailedURLs         int `json:"failed_urls"`
	TotalAttempts      int `json:"total_attempts"`
	SuccessfulAttempts int `json:"successful_attempts"`
	FailedAttempts     int `json:"failed_attempts"`
}

// String returns a string representation of visit stats.
func (s VisitStats) String() string {
	return fmt.Sprintf(
		"URLs: %d total, %d success, %d failed | Attempts: %d total, %d success, %d failed",
		s.TotalURLs,
		s.SuccessfulURLs,
		s.FailedURLs,
		s.TotalAttempts,
		s.SuccessfulAttempts,
		s.FailedAttempts,
	)
}

// LogVisitSummary logs overall stats and the attempts of every failed URL.
func (vt *VisitTracker) LogVisitSummary(l *logger.Logger) {
	l.Info("📊 Visit Summary:")

	for i, url := range vt.FailedURLs() {
		results := vt.GetAttemptLog(url)

		l.Info(fmt.Sprintf("%d. ❌ %s (%d attempts)", i+1, url, len(results)))

		for j, result := range results {
			l.Info(fmt.Sprintf("     Attempt %d: %s (%.2fs)", j+1, result.Error, result.Duration.Seconds()))
		}
	}

	l.Info(fmt.Sprintf("Overall: %s", vt.GetVisitStats()))
}
