package session

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"marlin/internal/bus"
	"marlin/internal/config"
	"marlin/internal/crypto"
	"marlin/internal/domain"
	"marlin/internal/logging"
	"marlin/internal/render"
)

// historyLimit caps how much persisted history is loaded per group at boot.
const historyLimit = 200

// inviteIntent remembers why a key-package lookup was issued: an empty Group
// means "create a new group with the target", otherwise the target is added
// to that existing group.
type inviteIntent struct {
	Target domain.PublicKey
	Group  domain.GroupID
}

// Core owns all session state. It is single-threaded by construction: every
// mutation happens inside Apply, which the bus calls from exactly one
// goroutine. Network I/O runs off-thread in the Runner and feeds results
// back as events, so no field here needs a lock.
type Core struct {
	cfg    config.Config
	id     domain.Identity
	eng    domain.Engine
	store  domain.Store
	runner *Runner
	log    logging.Logger
	submit func(bus.Event)

	snapshots  chan render.Snapshot
	onShutdown func()

	phase        domain.Phase
	published    bool
	publishingKP bool
	fp           domain.Fingerprint

	groups     map[domain.GroupID]domain.GroupState
	groupOrder []domain.GroupID // insertion order, drives the UI list
	byTag      map[string]domain.GroupID
	history    map[domain.GroupID][]domain.Message
	active     domain.GroupID

	pending       *pendingBuffer
	invites       map[uuid.UUID]inviteIntent
	usedRemoteKPs map[domain.KeyPackageID]bool

	fetchingWraps bool
	fetchingMsgs  map[domain.GroupID]bool

	// Fetch cursors: the newest envelope timestamp each poll has covered.
	// Fetches ask from cursor minus FetchWindow, so late-arriving envelopes
	// with slightly older timestamps are still swept up; dedupe drops the
	// overlap.
	sinceWraps int64
	sinceMsgs  map[domain.GroupID]int64

	notice string
	rng    *rand.Rand
}

// New wires a core around its collaborators. submit delivers events to the
// bus; the runner uses it to report task outcomes.
func New(cfg config.Config, id domain.Identity, eng domain.Engine, store domain.Store, relay domain.RelayClient, log logging.Logger, submit func(bus.Event)) *Core {
	pk := id.PublicKey()
	c := &Core{
		cfg:           cfg,
		id:            id,
		eng:           eng,
		store:         store,
		log:           log,
		submit:        submit,
		snapshots:     make(chan render.Snapshot, 1),
		phase:         domain.PhaseInitializing,
		fp:            crypto.Fingerprint(pk[:]),
		groups:        make(map[domain.GroupID]domain.GroupState),
		byTag:         make(map[string]domain.GroupID),
		history:       make(map[domain.GroupID][]domain.Message),
		pending:       newPendingBuffer(cfg.BufferPerGroup, cfg.MaxPendingGroups),
		invites:       make(map[uuid.UUID]inviteIntent),
		usedRemoteKPs: make(map[domain.KeyPackageID]bool),
		fetchingMsgs:  make(map[domain.GroupID]bool),
		sinceMsgs:     make(map[domain.GroupID]int64),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.runner = NewRunner(relay, submit, log, cfg.Workers, cfg.TaskTimeout)
	return c
}

// Snapshots returns the channel the UI consumes. Capacity one, latest wins:
// a slow consumer sees the freshest state, never a backlog.
func (c *Core) Snapshots() <-chan render.Snapshot { return c.snapshots }

// Start submits the boot event. Call once after the bus loop is running.
func (c *Core) Start() { c.submit(evStart{}) }

// OnShutdown registers the callback invoked when the user requests an
// orderly stop.
func (c *Core) OnShutdown(fn func()) { c.onShutdown = fn }

// Apply processes one event and publishes a fresh snapshot. It is the only
// entry point that mutates session state; the bus guarantees serial calls.
func (c *Core) Apply(e bus.Event) {
	switch ev := e.(type) {
	case evStart:
		c.onStart()
	case evInputLine:
		c.onInput(ev.Text)
	case evTick:
		c.onTick()
	case evFetched:
		c.onFetched(ev)
	case evPublished:
		c.onPublished(ev)
	case evTaskFailed:
		c.onTaskFailed(ev)
	case evShutdown:
		if c.onShutdown != nil {
			c.onShutdown()
		}
		return
	default:
		c.log.Warn("unhandled event", "event", e.Name())
		return
	}
	c.emitSnapshot()
}

func (c *Core) cacheGroup(g domain.GroupState) {
	if _, ok := c.groups[g.ID]; !ok {
		c.groupOrder = append(c.groupOrder, g.ID)
	}
	c.groups[g.ID] = g
	c.byTag[g.WireID] = g.ID
}

func (c *Core) recomputePhase() {
	if c.phase == domain.PhaseInitializing && !c.published {
		return
	}
	if c.active != "" {
		c.phase = domain.PhaseInGroup
		return
	}
	c.phase = domain.PhaseReady
}

func (c *Core) snapshot() render.Snapshot {
	st := domain.AppState{
		Phase:     c.phase,
		Published: c.published,
		Groups:    append([]domain.GroupID(nil), c.groupOrder...),
		Active:    c.active,
	}
	views := make([]render.GroupView, 0, len(c.groupOrder))
	for _, gid := range c.groupOrder {
		g := c.groups[gid]
		views = append(views, render.GroupView{
			ID:      g.ID,
			Name:    g.Name,
			Members: len(g.Members),
			Epoch:   g.Epoch,
			Pending: g.PendingCommit,
		})
	}
	msgs := append([]domain.Message(nil), c.history[c.active]...)
	return render.Snapshot{
		State:       st,
		Fingerprint: c.fp,
		Groups:      views,
		Messages:    msgs,
		Notice:      c.notice,
	}
}

func (c *Core) emitSnapshot() {
	snap := c.snapshot()
	select {
	case c.snapshots <- snap:
	default:
		select {
		case <-c.snapshots:
		default:
		}
		select {
		case c.snapshots <- snap:
		default:
		}
	}
}
