package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marlin/internal/bus"
	"marlin/internal/domain"
	"marlin/internal/logging"
)

// opKind identifies what a task does against the relay.
type opKind int

const (
	opPublishKeyPackage opKind = iota
	opPublishWelcome
	opPublishMessage
	opFetchKeyPackage
	opFetchWraps
	opFetchMessages
)

func (k opKind) String() string {
	switch k {
	case opPublishKeyPackage:
		return "publish-key-package"
	case opPublishWelcome:
		return "publish-welcome"
	case opPublishMessage:
		return "publish-message"
	case opFetchKeyPackage:
		return "fetch-key-package"
	case opFetchWraps:
		return "fetch-wraps"
	case opFetchMessages:
		return "fetch-messages"
	}
	return "unknown"
}

func (k opKind) isPublish() bool {
	return k == opPublishKeyPackage || k == opPublishWelcome || k == opPublishMessage
}

// Task is one unit of relay I/O. The core builds tasks, the Runner executes
// them off-thread and submits the outcome back to the bus as an event. A
// retried task keeps its ID so the core can correlate bookkeeping across
// attempts.
type Task struct {
	ID      uuid.UUID
	Op      opKind
	Attempt int

	Env    domain.Envelope // publishes
	Filter domain.Filter   // fetches
	Group  domain.GroupID  // context for message publishes and fetches
}

// Runner executes tasks against the relay under a fixed concurrency budget.
// It never touches session state; results travel back over the bus.
type Runner struct {
	relay   domain.RelayClient
	submit  func(ev bus.Event)
	log     logging.Logger
	sem     chan struct{}
	timeout time.Duration
}

// NewRunner builds a runner with the given worker budget and per-task
// timeout. submit delivers result events to the bus.
func NewRunner(relay domain.RelayClient, submit func(ev bus.Event), log logging.Logger, workers int, timeout time.Duration) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		relay:   relay,
		submit:  submit,
		log:     log,
		sem:     make(chan struct{}, workers),
		timeout: timeout,
	}
}

// Do schedules t for execution. It returns immediately; the worker budget is
// enforced inside the spawned goroutine so the caller never blocks.
func (r *Runner) Do(t Task) {
	go r.run(t)
}

// After schedules t to run once d has elapsed. Used for backoff retries.
func (r *Runner) After(d time.Duration, t Task) {
	time.AfterFunc(d, func() { r.Do(t) })
}

func (r *Runner) run(t Task) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if t.Op.isPublish() {
		if err := r.relay.Publish(ctx, t.Env); err != nil {
			r.log.Debug("publish failed", "op", t.Op.String(), "attempt", t.Attempt, "err", err)
			r.submit(evTaskFailed{Task: t, Err: err})
			return
		}
		r.submit(evPublished{Task: t})
		return
	}

	envs, err := r.relay.Fetch(ctx, t.Filter)
	if err != nil {
		r.log.Debug("fetch failed", "op", t.Op.String(), "attempt", t.Attempt, "err", err)
		r.submit(evTaskFailed{Task: t, Err: err})
		return
	}
	r.submit(evFetched{Task: t, Envs: envs})
}
