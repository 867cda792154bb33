package playbackmodule

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
)

// AuditWriter applies durable bookkeeping writes (playback logs, watch
// history) that must never fail a user-facing call. A failed write is
// handed to a background worker that retries it with backoff and eventually
// drops it with an error log. Audit rows are for reporting only and are
// never consulted for admission decisions, so losing one is survivable;
// blocking a release on one is not.
type AuditWriter struct {
	db     *gorm.DB
	logger hclog.Logger

	retries chan auditOp
	stop    chan struct{}
	wg      sync.WaitGroup

	maxAttempts int
	backoff     time.Duration
}

type auditOp struct {
	desc     string
	apply    func(db *gorm.DB) error
	attempts int
}

// NewAuditWriter creates and starts an audit writer
func NewAuditWriter(db *gorm.DB, logger hclog.Logger) *AuditWriter {
	w := &AuditWriter{
		db:          db,
		logger:      logger.Named("audit-writer"),
		retries:     make(chan auditOp, 256),
		stop:        make(chan struct{}),
		maxAttempts: 5,
		backoff:     500 * time.Millisecond,
	}
	w.wg.Add(1)
	go w.retryLoop()
	return w
}

// Close stops the retry worker and waits for it to exit
func (w *AuditWriter) Close() {
	close(w.stop)
	w.wg.Wait()
}

// Do applies the write immediately; on failure it logs and queues an
// asynchronous retry. It never returns an error.
func (w *AuditWriter) Do(desc string, apply func(db *gorm.DB) error) {
	if err := apply(w.db); err != nil {
		w.logger.Error("audit write failed, queueing retry", "op", desc, "error", err)
		w.enqueue(auditOp{desc: desc, apply: apply, attempts: 1})
	}
}

func (w *AuditWriter) enqueue(op auditOp) {
	select {
	case w.retries <- op:
	default:
		w.logger.Error("audit retry queue full, dropping write", "op", op.desc)
	}
}

func (w *AuditWriter) retryLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case op := <-w.retries:
			w.retry(op)
		}
	}
}

func (w *AuditWriter) retry(op auditOp) {
	for op.attempts < w.maxAttempts {
		delay := time.Duration(op.attempts) * w.backoff
		select {
		case <-w.stop:
			return
		case <-time.After(delay):
		}

		op.attempts++
		if err := op.apply(w.db); err != nil {
			w.logger.Warn("audit retry failed", "op", op.desc, "attempt", op.attempts, "error", err)
			continue
		}
		return
	}
	w.logger.Error("audit write dropped after retries", "op", op.desc, "attempts", op.attempts)
}
