package vmctl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sio/guestsyncd/internal/ledger"
	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/observability"
)

// DefaultWorkers is the bounded worker pool size: a slow domain must not
// stall unrelated actions, but an unbounded pool offers no protection
// against a storm of duplicate requests.
const DefaultWorkers = 5

// DefaultCoalesceThreshold is how recently the ledger must have recorded
// an action for a domain before a new request for it is dropped as a
// near-duplicate.
const DefaultCoalesceThreshold = 3 * time.Second

type request struct {
	id     string
	op     string
	domain string
}

// syncActuator is the subset of Actuator the queue dispatches to. It is
// an interface so tests can substitute a fake without a real libvirt
// connection.
type syncActuator interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	ActionDeadline() time.Duration
}

// ActionDeadline returns the context budget a single action is allowed:
// the full timeout plus one extra poll tick, so the convergence loop
// always has a chance to observe its own final tick.
func (a *Actuator) ActionDeadline() time.Duration {
	return a.cfg.Timeout + a.cfg.CheckDelay
}

// Queue is the asynchronous front door to the Actuator:
// StartDomain/StopDomain/RestartDomain place a request on a FIFO buffered
// to 4096 requests and return once it is queued; the FIFO is not
// unbounded, and while it is full they block until a worker takes a
// request or the queue is stopped. A bounded
// worker pool drains the FIFO, coalescing near-duplicates via the ledger
// before dispatching to the synchronous Actuator.
type Queue struct {
	actuator syncActuator
	ledger   *ledger.Ledger
	coalesce time.Duration
	workers  int
	reqCh    chan request
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// NewQueue creates a request queue bound to actuator, coalescing requests
// for the same domain within coalesce of the ledger's last recorded
// action. ledger is shared with the event bridge so that an action this
// queue takes is recognized there as an echo.
func NewQueue(actuator *Actuator, l *ledger.Ledger, workers int, coalesce time.Duration) *Queue {
	return newQueue(actuator, l, workers, coalesce)
}

func newQueue(actuator syncActuator, l *ledger.Ledger, workers int, coalesce time.Duration) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if coalesce <= 0 {
		coalesce = DefaultCoalesceThreshold
	}
	return &Queue{
		actuator: actuator,
		ledger:   l,
		coalesce: coalesce,
		workers:  workers,
		reqCh:    make(chan request, 4096),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	logging.Op().Info("domain action queue started", "workers", q.workers)
}

// Stop waits for requests already being processed, then terminates the
// worker pool. Requests still waiting in the FIFO are not drained and may
// be dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	close(q.stopCh)
	q.mu.Unlock()
	q.wg.Wait()
	logging.Op().Info("domain action queue stopped")
}

// StartDomain places a start request for domain on the FIFO.
func (q *Queue) StartDomain(domain string) { q.enqueue("start", domain) }

// StopDomain places a stop request for domain on the FIFO.
func (q *Queue) StopDomain(domain string) { q.enqueue("stop", domain) }

// RestartDomain places a restart request for domain on the FIFO.
func (q *Queue) RestartDomain(domain string) { q.enqueue("restart", domain) }

func (q *Queue) enqueue(op, domain string) {
	req := request{id: uuid.NewString(), op: op, domain: domain}
	select {
	case q.reqCh <- req:
	case <-q.stopCh:
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case req := <-q.reqCh:
			q.process(id, req)
		}
	}
}

// process records the action, drops it if it coalesces with one already
// recorded for this domain, and otherwise dispatches it. req.id tags
// the log lines and the dispatch's span so the whole lifecycle of one
// queued request can be correlated end to end.
func (q *Queue) process(workerID int, req request) {
	q.ledger.Record(req.domain)
	previous := q.ledger.Previous(req.domain)

	if !previous.IsZero() && time.Since(previous) <= q.coalesce {
		logging.Op().Debug("domain action coalesced", "request_id", req.id, "domain", req.domain, "op", req.op, "worker", workerID)
		metrics.Global().RecordLedgerCoalesce()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.actuator.ActionDeadline())
	defer cancel()
	ctx = observability.WithRequestID(ctx, req.id)

	var err error
	switch req.op {
	case "start":
		err = q.actuator.Start(ctx, req.domain)
	case "stop":
		err = q.actuator.Stop(ctx, req.domain)
	case "restart":
		err = q.actuator.Restart(ctx, req.domain)
	default:
		err = fmt.Errorf("vmctl: unknown op %q", req.op)
	}
	if err != nil {
		logging.Op().Warn("domain action failed", "request_id", req.id, "domain", req.domain, "op", req.op, "worker", workerID, "error", err)
	}
}
