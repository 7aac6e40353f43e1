package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ProgressTracker estimates completion of one stage
type ProgressTracker struct {
	startTime time.Time
	stage     string
}

// NewProgressTracker starts tracking a stage
func NewProgressTracker(stage string) *ProgressTracker {
	return &ProgressTracker{startTime: time.Now(), stage: stage}
}

// Progress holds current progress information
type Progress struct {
	Stage      string
	Done       int
	Total      int
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // units per second
}

// Calculate returns progress metrics for done of total units
func (p *ProgressTracker) Calculate(done, total int) Progress {
	return p.calculate(done, total, time.Since(p.startTime))
}

func (p *ProgressTracker) calculate(done, total int, elapsed time.Duration) Progress {
	var percentage float64
	var eta time.Duration

	if total > 0 && done > 0 {
		percentage = float64(done) / float64(total) * 100
		if done < total && elapsed > 0 {
			perUnit := float64(elapsed) / float64(done)
			eta = time.Duration(perUnit * float64(total-done))
		}
	}

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(done) / elapsed.Seconds()
	}

	return Progress{
		Stage:      p.stage,
		Done:       done,
		Total:      total,
		Percentage: percentage,
		Elapsed:    elapsed.Round(time.Second),
		ETA:        eta.Round(time.Second),
		Throughput: throughput,
	}
}

// LogProgress consumes events until the channel is closed and logs them,
// at most once per interval per stage plus once when a stage completes
func LogProgress(log *zap.Logger, events <-chan Event, interval time.Duration) {
	var (
		tracker  *ProgressTracker
		lastLog  time.Time
		finished bool
	)

	for ev := range events {
		if tracker == nil || tracker.stage != ev.Stage {
			tracker = NewProgressTracker(ev.Stage)
			lastLog = time.Time{}
			finished = false
		}
		if ev.Message != "" {
			log.Info(ev.Message, zap.String("stage", ev.Stage))
		}

		complete := ev.Total > 0 && ev.Done >= ev.Total
		if finished || (!complete && time.Since(lastLog) < interval) {
			continue
		}
		lastLog = time.Now()
		finished = complete

		p := tracker.Calculate(ev.Done, ev.Total)
		log.Info("Progress",
			zap.String("stage", p.Stage),
			zap.Int("done", p.Done),
			zap.Int("total", p.Total),
			zap.String("percent", fmt.Sprintf("%.1f%%", p.Percentage)),
			zap.String("rate", FormatThroughput(p.Throughput)),
			zap.String("eta", FormatETA(p.ETA)))
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	if itemsPerSec >= 1_000_000 {
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	}
	if itemsPerSec >= 1_000 {
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	}
	return fmt.Sprintf("%.0f/s", itemsPerSec)
}
