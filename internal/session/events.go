package session

import "marlin/internal/domain"

// Bus events consumed by the core. Producers construct these and submit
// them; nothing here carries behavior.

// evStart boots the core: load persisted state, ensure a key package exists
// and schedule its publication.
type evStart struct{}

func (evStart) Name() string { return "start" }

// evInputLine is one line of user input, captured off-thread by the input
// producer.
type evInputLine struct{ Text string }

func (evInputLine) Name() string { return "input-line" }

// evTick asks the core to schedule its periodic fetches. Safe to shed when
// the bus is busy.
type evTick struct{}

func (evTick) Name() string { return "fetch-tick" }

// evShutdown signals an orderly stop requested by the user.
type evShutdown struct{}

func (evShutdown) Name() string { return "shutdown" }

// evFetched carries the result of one relay fetch task.
type evFetched struct {
	Task Task
	Envs []domain.Envelope
}

func (evFetched) Name() string { return "fetched" }

// evPublished confirms one relay publish task.
type evPublished struct{ Task Task }

func (evPublished) Name() string { return "published" }

// evTaskFailed carries a typed failure from a task. The core decides
// between retry with backoff and surfacing to the user.
type evTaskFailed struct {
	Task Task
	Err  error
}

func (evTaskFailed) Name() string { return "task-failed" }
