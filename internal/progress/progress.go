// Package progress converts raw transfer signals into a monotonically
// non-decreasing percentage. Fragment counters are preferred over byte
// counters, and estimated totals are display-only fallbacks. 100 is
// only ever reported after an explicit finished signal.
package progress

import (
	"sync"

	"github.com/telefetch-project/telefetch/internal/media"
)

// Snapshot is what the tracker reports after absorbing a signal.
type Snapshot struct {
	Percent    int
	Downloaded int64
	Total      int64 // hard total if known, estimate otherwise, 0 if neither
	TotalExact bool  // Total came from a hard byte count
	Finished   bool
}

// Tracker tracks one job's transfer progress. Safe for use from the
// fetch goroutine and status readers concurrently.
type Tracker struct {
	mu       sync.Mutex
	last     Snapshot
	finished bool
}

// NewTracker creates a tracker starting at 0%.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe absorbs one raw update and returns the current snapshot.
// The reported percentage never decreases and stays below 100 until
// the update carries the finished flag.
func (t *Tracker) Observe(u media.ProgressUpdate) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.Finished {
		t.finished = true
	}

	percent := t.computePercent(u)
	if percent < t.last.Percent {
		percent = t.last.Percent
	}
	if !t.finished && percent > 99 {
		percent = 99
	}
	if t.finished {
		percent = 100
	}

	snap := Snapshot{
		Percent:    percent,
		Downloaded: u.DownloadedBytes,
		Finished:   t.finished,
	}
	if u.TotalBytes > 0 {
		snap.Total = u.TotalBytes
		snap.TotalExact = true
	} else if u.TotalBytesEstimate > 0 {
		snap.Total = u.TotalBytesEstimate
	}

	// Totals can disappear between fragment batches; keep the last
	// known one for display.
	if snap.Total == 0 {
		snap.Total = t.last.Total
		snap.TotalExact = t.last.TotalExact
	}
	if snap.Downloaded == 0 {
		snap.Downloaded = t.last.Downloaded
	}

	t.last = snap
	return snap
}

// Current returns the last snapshot without absorbing anything.
func (t *Tracker) Current() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// computePercent derives a raw percentage, preferring fragment counts
// over byte counts over the byte estimate.
func (t *Tracker) computePercent(u media.ProgressUpdate) int {
	if u.FragmentCount > 0 {
		return clampRatio(int64(u.FragmentIndex), int64(u.FragmentCount))
	}
	if u.TotalBytes > 0 {
		return clampRatio(u.DownloadedBytes, u.TotalBytes)
	}
	if u.TotalBytesEstimate > 0 {
		return clampRatio(u.DownloadedBytes, u.TotalBytesEstimate)
	}
	return t.last.Percent
}

func clampRatio(part, whole int64) int {
	if whole <= 0 {
		return 0
	}
	p := int(part * 100 / whole)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
