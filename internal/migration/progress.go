package migration

import (
	"time"

	"go.uber.org/zap"
)

// Progress is one per-batch progress report.
type Progress struct {
	Batch     int
	Processed int64
	Total     int64
	Elapsed   time.Duration
	ETA       time.Duration
}

// ProgressFunc receives a report after every committed batch.
type ProgressFunc func(Progress)

type progressReporter struct {
	total   int64
	start   time.Time
	observe ProgressFunc
}

func newProgressReporter(total int64, start time.Time, observe ProgressFunc) *progressReporter {
	return &progressReporter{total: total, start: start, observe: observe}
}

func (r *progressReporter) report(logger *zap.Logger, batch int, processed int64) {
	elapsed := time.Since(r.start)
	p := Progress{
		Batch:     batch,
		Processed: processed,
		Total:     r.total,
		Elapsed:   elapsed,
	}
	if processed > 0 && processed < r.total {
		perRow := elapsed / time.Duration(processed)
		p.ETA = perRow * time.Duration(r.total-processed)
	}
	logger.Info("batch committed",
		zap.Int("batch", p.Batch),
		zap.Int64("processed", p.Processed),
		zap.Int64("total", p.Total),
		zap.Duration("elapsed", p.Elapsed.Round(time.Millisecond)),
		zap.Duration("eta", p.ETA.Round(time.Millisecond)))
	r.observe(p)
}
