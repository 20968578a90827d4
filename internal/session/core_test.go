package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"marlin/internal/bus"
	"marlin/internal/config"
	"marlin/internal/crypto"
	"marlin/internal/domain"
	"marlin/internal/engine"
	"marlin/internal/logging"
	"marlin/internal/store"
)

// stubRelay is a scriptable relay double. Runner goroutines hit it
// concurrently, so counters sit behind a lock.
type stubRelay struct {
	mu        sync.Mutex
	published []domain.Envelope
	fetchRes  []domain.Envelope
	fetches   int
}

func (s *stubRelay) Publish(_ context.Context, env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, env)
	return nil
}

func (s *stubRelay) Fetch(_ context.Context, _ domain.Filter) ([]domain.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return append([]domain.Envelope(nil), s.fetchRes...), nil
}

func (s *stubRelay) publishedByKind(k domain.EnvelopeKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, env := range s.published {
		if env.Kind == k {
			n++
		}
	}
	return n
}

func (s *stubRelay) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// eventQueue collects events the runner submits so tests can apply them
// deterministically on the test goroutine, the way the bus loop would.
type eventQueue struct {
	mu  sync.Mutex
	evs []bus.Event
}

func (q *eventQueue) submit(e bus.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.evs = append(q.evs, e)
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.evs)
}

// drain applies every queued event in arrival order, repeating until
// applying stops producing synchronously-queued work.
func (q *eventQueue) drain(c *Core) {
	for {
		q.mu.Lock()
		evs := q.evs
		q.evs = nil
		q.mu.Unlock()
		if len(evs) == 0 {
			return
		}
		for _, e := range evs {
			c.Apply(e)
		}
	}
}

func testCfg() config.Config {
	return config.Config{
		Workers:          2,
		TaskTimeout:      time.Second,
		FetchWindow:      time.Hour,
		BufferPerGroup:   4,
		MaxPendingGroups: 2,
		Retry: config.RetryPolicy{
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  3,
			Jitter:       false,
		},
	}
}

func newTestCore(t *testing.T) (*Core, *stubRelay, *eventQueue, domain.Store) {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	st := store.NewMemory()
	eng := engine.New(id, st, logging.Discard())
	rel := &stubRelay{}
	q := &eventQueue{}
	c := New(testCfg(), id, eng, st, rel, logging.Discard(), q.submit)
	return c, rel, q, st
}

// newPeer returns a standalone engine acting as a remote participant.
func newPeer(t *testing.T) *engine.Engine {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return engine.New(id, store.NewMemory(), logging.Discard())
}

// inviteCore walks a remote creator through inviting the core under test and
// returns the group id plus the wrapped welcome. The core has not seen the
// welcome yet.
func inviteCore(t *testing.T, creator *engine.Engine, c *Core) (domain.GroupID, domain.Envelope) {
	t.Helper()
	kp, err := c.eng.GenerateKeyPackage()
	require.NoError(t, err)
	adv, err := c.eng.AdvertiseKeyPackage(kp)
	require.NoError(t, err)
	parsed, err := creator.ParseKeyPackage(adv)
	require.NoError(t, err)

	gid, welcome, err := creator.CreateGroup("pair", parsed)
	require.NoError(t, err)
	require.NoError(t, creator.MergePendingCommit(gid))
	wrapped, err := creator.WrapRumor(welcome.Recipient, welcome.InitKey, welcome.Rumor)
	require.NoError(t, err)
	return gid, wrapped
}

func TestStartPublishesKeyPackageAndReachesReady(t *testing.T) {
	c, rel, q, _ := newTestCore(t)

	c.Apply(evStart{})
	require.Equal(t, domain.PhaseInitializing, c.phase)

	require.Eventually(t, func() bool { return q.len() > 0 }, time.Second, time.Millisecond)
	q.drain(c)

	require.True(t, c.published)
	require.Equal(t, domain.PhaseReady, c.phase)
	require.Equal(t, 1, rel.publishedByKind(domain.KindKeyPackage))
}

func TestMessagesBeforeWelcomeBufferThenReplayInOrder(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)

	env1, err := alice.EncryptMessage(gid, []byte("one"))
	require.NoError(t, err)
	env2, err := alice.EncryptMessage(gid, []byte("two"))
	require.NoError(t, err)

	// Messages land first: no group yet, so they buffer with no history.
	c.Apply(evFetched{Task: Task{Op: opFetchMessages}, Envs: []domain.Envelope{env1, env2}})
	require.Empty(t, c.groups)
	require.Empty(t, c.history[gid])

	// Welcome lands: join, merge, replay buffered messages in arrival order.
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})
	require.Equal(t, domain.PhaseInGroup, c.phase)
	require.Equal(t, gid, c.active)
	require.Len(t, c.history[gid], 2)
	require.Equal(t, "one", c.history[gid][0].Content)
	require.Equal(t, "two", c.history[gid][1].Content)

	// The relay window overlaps fetches; replays must not duplicate.
	c.Apply(evFetched{Task: Task{Op: opFetchMessages}, Envs: []domain.Envelope{env1, env2}})
	require.Len(t, c.history[gid], 2)
}

func TestWelcomeBeforeAnyMessageYieldsEmptyMergedGroup(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)

	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	require.Equal(t, domain.PhaseInGroup, c.phase)
	require.Equal(t, gid, c.active)
	g := c.groups[gid]
	require.False(t, g.PendingCommit, "join must merge the pending commit")
	require.EqualValues(t, 0, g.Epoch)
	require.Empty(t, c.history[gid])
}

func TestRepeatedFetchDeliveriesAppearExactlyOnce(t *testing.T) {
	c, rel, q, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	env1, err := alice.EncryptMessage(gid, []byte("only once"))
	require.NoError(t, err)
	rel.fetchRes = []domain.Envelope{env1}

	// A transient failure retries through the backoff timer and eventually
	// fetches; overlapping windows then redeliver the same envelope.
	task := Task{ID: uuid.New(), Op: opFetchMessages, Group: gid}
	c.fetchingMsgs[gid] = true
	c.Apply(evTaskFailed{Task: task, Err: domain.Transient("fetch", errors.New("timeout"))})
	require.Eventually(t, func() bool { return q.len() > 0 }, time.Second, time.Millisecond)
	q.drain(c)
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{env1}})
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{env1}})

	require.Len(t, c.history[gid], 1)
	require.Equal(t, "only once", c.history[gid][0].Content)
}

func TestWelcomeReplayYieldsSingleGroup(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	_, wrapped := inviteCore(t, alice, c)

	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	require.Len(t, c.groupOrder, 1)
	require.Len(t, c.groups, 1)
}

func TestSendWithPendingCommitHasNoSideEffect(t *testing.T) {
	c, rel, _, st := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	// Force an unmerged commit, as between an add-member and its merge.
	g := c.groups[gid]
	g.PendingCommit = true
	require.NoError(t, st.SaveGroup(g))
	c.groups[gid] = g

	c.Apply(evInputLine{Text: "too early"})

	require.Contains(t, c.notice, "pending commit")
	require.Empty(t, c.history[gid])
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, rel.publishedByKind(domain.KindGroupMessage))
}

func TestSendAppendsOptimisticEchoAndPublishes(t *testing.T) {
	c, rel, _, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	c.Apply(evInputLine{Text: "hello alice"})

	require.Len(t, c.history[gid], 1)
	require.Equal(t, "hello alice", c.history[gid][0].Content)
	require.Eventually(t, func() bool {
		return rel.publishedByKind(domain.KindGroupMessage) == 1
	}, time.Second, time.Millisecond)
}

func TestCrossGroupHistoriesStayIndependent(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	carol := newPeer(t)

	gidA, wrapA := inviteCore(t, alice, c)
	gidC, wrapC := inviteCore(t, carol, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapA, wrapC}})
	require.Len(t, c.groupOrder, 2)

	a1, err := alice.EncryptMessage(gidA, []byte("a1"))
	require.NoError(t, err)
	c1, err := carol.EncryptMessage(gidC, []byte("c1"))
	require.NoError(t, err)
	a2, err := alice.EncryptMessage(gidA, []byte("a2"))
	require.NoError(t, err)

	// Interleaved arrival must not leak across groups or reorder within one.
	c.Apply(evFetched{Task: Task{Op: opFetchMessages}, Envs: []domain.Envelope{a1, c1, a2}})

	require.Len(t, c.history[gidA], 2)
	require.Equal(t, "a1", c.history[gidA][0].Content)
	require.Equal(t, "a2", c.history[gidA][1].Content)
	require.Len(t, c.history[gidC], 1)
	require.Equal(t, "c1", c.history[gidC][0].Content)
}

func TestTransientFetchFailureRetriesThenSucceeds(t *testing.T) {
	c, rel, q, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	rel.fetchRes = []domain.Envelope{wrapped}

	task := Task{ID: uuid.New(), Op: opFetchWraps}
	c.fetchingWraps = true
	c.Apply(evTaskFailed{Task: task, Err: domain.Transient("fetch", errors.New("conn refused"))})

	// The backoff timer re-runs the fetch; this time the stub succeeds.
	require.Eventually(t, func() bool { return rel.fetchCount() >= 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return q.len() > 0 }, time.Second, time.Millisecond)
	q.drain(c)

	require.Contains(t, c.groups, gid)
	require.Len(t, c.groupOrder, 1)
}

func TestExhaustedRetriesSurfaceANotice(t *testing.T) {
	c, _, _, _ := newTestCore(t)

	task := Task{ID: uuid.New(), Op: opFetchWraps, Attempt: testCfg().Retry.MaxAttempts - 1}
	c.fetchingWraps = true
	c.Apply(evTaskFailed{Task: task, Err: domain.Transient("fetch", errors.New("conn refused"))})

	require.False(t, c.fetchingWraps)
	require.Contains(t, c.notice, "relay unreachable")
}

func TestFailedKeyPackagePublishRetriesOnNextTick(t *testing.T) {
	c, rel, q, _ := newTestCore(t)

	// A publish that burned through its whole retry budget leaves the core
	// unpublished but must not leave it stuck there.
	task := Task{ID: uuid.New(), Op: opPublishKeyPackage, Attempt: testCfg().Retry.MaxAttempts - 1}
	c.publishingKP = true
	c.Apply(evTaskFailed{Task: task, Err: domain.Transient("publish", errors.New("conn refused"))})

	require.False(t, c.publishingKP)
	require.Equal(t, domain.PhaseInitializing, c.phase)
	require.Contains(t, c.notice, "publish failed")

	c.Apply(evTick{})
	require.Eventually(t, func() bool { return q.len() > 0 }, time.Second, time.Millisecond)
	q.drain(c)

	require.True(t, c.published)
	require.Equal(t, domain.PhaseReady, c.phase)
	require.Equal(t, 1, rel.publishedByKind(domain.KindKeyPackage))
}

func TestMemberUpdateAdmitsNewSenderEvenWhenHerMessageArrivesFirst(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	carol := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	ckp, err := carol.GenerateKeyPackage()
	require.NoError(t, err)
	welcome, update, err := alice.AddMember(gid, ckp)
	require.NoError(t, err)
	require.NoError(t, alice.MergePendingCommit(gid))
	carolWrap, err := alice.WrapRumor(welcome.Recipient, welcome.InitKey, welcome.Rumor)
	require.NoError(t, err)
	_, err = carol.UnwrapWelcome(carolWrap)
	require.NoError(t, err)
	require.NoError(t, carol.MergePendingCommit(gid))

	early, err := carol.EncryptMessage(gid, []byte("hi from carol"))
	require.NoError(t, err)

	// Carol's first message races ahead of the membership update: it is a
	// later epoch than the core knows, so it buffers rather than dropping.
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{early}})
	require.Empty(t, c.history[gid])

	// The update lands: the core learns carol, merges, and replays hers.
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{update}})

	g := c.groups[gid]
	require.EqualValues(t, 1, g.Epoch)
	require.False(t, g.PendingCommit)
	require.Len(t, g.Members, 3)
	require.Len(t, c.history[gid], 2)
	require.True(t, c.history[gid][0].Update)
	require.Equal(t, "hi from carol", c.history[gid][1].Content)
}

func TestFetchCursorAdvancesEvenOverUndecryptableEnvelopes(t *testing.T) {
	c, _, _, _ := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})
	require.EqualValues(t, wrapped.CreatedAt, c.sinceWraps)

	junk := domain.Envelope{
		ID:        "junk-envelope",
		Kind:      domain.KindGroupMessage,
		GroupTag:  c.groups[gid].WireID,
		CreatedAt: wrapped.CreatedAt + 30,
		Payload:   []byte("not a payload"),
	}
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{junk}})

	require.Empty(t, c.history[gid])
	require.Equal(t, junk.CreatedAt, c.sinceMsgs[gid])
	// Polling reaches one window behind the cursor, never back to zero.
	require.Equal(t, junk.CreatedAt-int64(time.Hour/time.Second), c.fetchSince(c.sinceMsgs[gid]))
	require.EqualValues(t, 0, c.fetchSince(0))
}

func TestStartSeedsFetchCursorsFromPersistedHistory(t *testing.T) {
	c, _, _, st := newTestCore(t)
	alice := newPeer(t)
	gid, wrapped := inviteCore(t, alice, c)
	c.Apply(evFetched{Task: Task{Op: opFetchWraps}, Envs: []domain.Envelope{wrapped}})

	env, err := alice.EncryptMessage(gid, []byte("before restart"))
	require.NoError(t, err)
	c.Apply(evFetched{Task: Task{Op: opFetchMessages, Group: gid}, Envs: []domain.Envelope{env}})
	require.Len(t, c.history[gid], 1)

	// A fresh core over the same store resumes from the stored history
	// instead of refetching from the beginning of time.
	q2 := &eventQueue{}
	c2 := New(testCfg(), c.id, c.eng, st, &stubRelay{}, logging.Discard(), q2.submit)
	c2.Apply(evStart{})

	require.Equal(t, c.history[gid][0].CreatedAt, c2.sinceMsgs[gid])
	require.Positive(t, c2.sinceMsgs[gid])
}

func TestTickSchedulesAtMostOneWrapFetch(t *testing.T) {
	c, rel, _, _ := newTestCore(t)
	c.published = true
	c.recomputePhase()

	c.Apply(evTick{})
	c.Apply(evTick{})

	require.Eventually(t, func() bool { return rel.fetchCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, rel.fetchCount())
}
