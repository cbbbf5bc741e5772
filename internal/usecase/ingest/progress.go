package ingest

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Report summarizes one ingest run. Embedded counts only records whose
// vectors were actually committed, so a partially failed run still
// reports what survived.
type Report struct {
	Received        int
	Invalid         int
	Upserted        int
	AlreadyEmbedded int
	Selected        int
	Embedded        int
	Batches         int
	Failed          int
	PromptTokens    int
	TotalTokens     int
	Elapsed         time.Duration
}

// Skipped is the number of records that produced no embedding work:
// invalid input plus records that already carried a vector.
func (r Report) Skipped() int {
	return r.Invalid + r.AlreadyEmbedded
}

// progress tracks committed work across concurrent batches and logs a
// rate/ETA line after each commit.
type progress struct {
	mu           sync.Mutex
	done         int
	total        int
	promptTokens int
	totalTokens  int
	started      time.Time
	logger       *zap.Logger
}

func newProgress(total int, logger *zap.Logger) *progress {
	return &progress{total: total, started: time.Now(), logger: logger}
}

// advance records one committed batch.
func (p *progress) advance(records, promptTokens, totalTokens int) {
	p.mu.Lock()
	p.done += records
	p.promptTokens += promptTokens
	p.totalTokens += totalTokens
	done, total := p.done, p.total
	p.mu.Unlock()

	elapsed := time.Since(p.started)
	rate := float64(done) / elapsed.Seconds()
	var eta time.Duration
	if rate > 0 {
		eta = time.Duration(float64(total-done) / rate * float64(time.Second))
	}
	p.logger.Info("embedding progress",
		zap.Int("done", done),
		zap.Int("total", total),
		zap.Float64("per_second", rate),
		zap.Duration("eta", eta.Round(time.Second)))
}

// snapshot returns committed counts; safe during and after the run.
func (p *progress) snapshot() (done, promptTokens, totalTokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.promptTokens, p.totalTokens
}
