package importer

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker tracks and reports progress of a running import.
// The total is unknown while sources stream, so it reports counts and rate.
// It is safe for concurrent use.
type ProgressTracker struct {
	writer         io.Writer
	processed      int
	skipped        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker that writes a status line to writer
// every reportInterval features.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Start begins tracking and resets the counters.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.processed = 0
	p.skipped = 0
	p.lastReported = 0
}

// Increment records one processed feature.
func (p *ProgressTracker) Increment(skipped bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.processed++
	if skipped {
		p.skipped++
	}

	if p.processed-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.processed
	}
}

// Finish writes the final status line followed by a newline.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
	p.started = false
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

// report prints the current status. Caller must hold the lock.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.processed) / elapsed.Seconds()
	}

	fmt.Fprintf(p.writer, "\rImported: %d features (%d skipped) - %.1f features/s",
		p.processed, p.skipped, rate)
}
