package service

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/leetquery/internal/metrics"
	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/rs/zerolog/log"
)

type QueryLogSink interface {
	CreateBatch(ctx context.Context, logs []models.QueryLog) error
}

// QueryLogWriter batches audit records on a buffered channel and inserts
// them from one background goroutine. Record never blocks; records are
// dropped when the buffer is full.
type QueryLogWriter struct {
	sink          QueryLogSink
	ch            chan models.QueryLog
	batchSize     int
	flushInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type QueryLogWriterOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func NewQueryLogWriter(sink QueryLogSink, opts QueryLogWriterOptions) *QueryLogWriter {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}

	return &QueryLogWriter{
		sink:          sink,
		ch:            make(chan models.QueryLog, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (w *QueryLogWriter) Record(entry models.QueryLog) {
	select {
	case w.ch <- entry:
	default:
		metrics.RecordQueryLogDropped()
		log.Warn().Msg("query log buffer full, dropping entry")
	}
}

// Start launches the background worker
func (w *QueryLogWriter) Start() {
	go w.run()
}

func (w *QueryLogWriter) run() {
	defer close(w.done)

	batch := make([]models.QueryLog, 0, w.batchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.insertBatch(batch)
		batch = make([]models.QueryLog, 0, w.batchSize)
	}

	for {
		select {
		case entry := <-w.ch:
			batch = append(batch, entry)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stop:
			for {
				select {
				case entry := <-w.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *QueryLogWriter) insertBatch(batch []models.QueryLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.sink.CreateBatch(ctx, batch); err != nil {
		log.Error().Err(err).Int("count", len(batch)).Msg("failed to insert query logs")
	}
}

// Stop drains buffered records, flushes them and waits for the worker or
// ctx, whichever comes first.
func (w *QueryLogWriter) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
