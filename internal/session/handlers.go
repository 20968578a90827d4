package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"marlin/internal/domain"
)

func (c *Core) onStart() {
	groups, err := c.store.ListGroups()
	if err != nil {
		c.notice = "load groups: " + err.Error()
	}
	for _, g := range groups {
		c.cacheGroup(g)
		msgs, err := c.store.ListMessages(g.ID, historyLimit)
		if err != nil {
			c.log.Warn("load history", "group", string(g.ID), "err", err)
			continue
		}
		c.history[g.ID] = msgs
		if len(msgs) > 0 {
			// resume fetching where the last session left off
			c.sinceMsgs[g.ID] = msgs[len(msgs)-1].CreatedAt
		}
	}
	if len(c.groupOrder) > 0 {
		c.active = c.groupOrder[0]
	}
	c.ensureKeyPackage()
}

// ensureKeyPackage publishes the newest unconsumed local key package,
// minting a fresh one when none remains. Publishing is idempotent on the
// relay side, so repeating it is safe; the in-flight guard just keeps the
// tick loop from stacking duplicate tasks.
func (c *Core) ensureKeyPackage() {
	if c.publishingKP {
		return
	}
	pairs, err := c.store.ListKeyPackages()
	if err != nil {
		c.notice = "load key packages: " + err.Error()
		return
	}
	var kp domain.KeyPackage
	found := false
	for _, p := range pairs {
		if !p.Consumed {
			kp = p.KeyPackage
			found = true
		}
	}
	if !found {
		kp, err = c.eng.GenerateKeyPackage()
		if err != nil {
			c.notice = "generate key package: " + err.Error()
			return
		}
	}
	env, err := c.eng.AdvertiseKeyPackage(kp)
	if err != nil {
		c.notice = "advertise key package: " + err.Error()
		return
	}
	c.publishingKP = true
	c.runner.Do(Task{ID: uuid.New(), Op: opPublishKeyPackage, Env: env})
}

func (c *Core) onPublished(ev evPublished) {
	switch ev.Task.Op {
	case opPublishKeyPackage:
		c.publishingKP = false
		c.published = true
		c.recomputePhase()
		c.notice = "key package published"
	case opPublishWelcome:
		c.notice = "invitation sent"
	case opPublishMessage:
		// delivery is silent; the optimistic echo already rendered it
	}
}

func (c *Core) onTaskFailed(ev evTaskFailed) {
	t := ev.Task
	retryable := !t.Op.isPublish() || t.Op == opPublishKeyPackage
	if domain.IsTransient(ev.Err) && retryable && t.Attempt+1 < c.cfg.Retry.MaxAttempts {
		t.Attempt++
		d := nextBackoffDelay(c.cfg.Retry, t.Attempt, c.rng)
		c.log.Debug("retrying", "op", t.Op.String(), "attempt", t.Attempt, "delay", d.String())
		c.runner.After(d, t)
		return
	}
	c.clearInflight(t)
	switch t.Op {
	case opPublishMessage:
		c.notice = "send failed: " + ev.Err.Error()
	case opPublishWelcome:
		c.notice = "invite failed: " + ev.Err.Error()
	case opFetchKeyPackage:
		delete(c.invites, t.ID)
		c.notice = "key package lookup failed: " + ev.Err.Error()
	case opPublishKeyPackage:
		// the next tick retries the publish from scratch
		c.publishingKP = false
		c.notice = "key package publish failed: " + ev.Err.Error()
	default:
		c.log.Warn("task failed", "op", t.Op.String(), "err", ev.Err)
		c.notice = "relay unreachable: " + ev.Err.Error()
	}
}

func (c *Core) clearInflight(t Task) {
	switch t.Op {
	case opFetchWraps:
		c.fetchingWraps = false
	case opFetchMessages:
		delete(c.fetchingMsgs, t.Group)
	}
}

func (c *Core) onFetched(ev evFetched) {
	c.clearInflight(ev.Task)
	switch ev.Task.Op {
	case opFetchKeyPackage:
		c.onKeyPackageFetched(ev.Task, ev.Envs)
	case opFetchWraps:
		c.sinceWraps = maxCreated(c.sinceWraps, ev.Envs)
		c.onWraps(ev.Envs)
	case opFetchMessages:
		c.sinceMsgs[ev.Task.Group] = maxCreated(c.sinceMsgs[ev.Task.Group], ev.Envs)
		c.onGroupMessages(ev.Envs)
	}
}

// maxCreated advances a fetch cursor over a delivered batch. Buffered and
// discarded envelopes count too: the buffer holds the former and the latter
// will never decrypt no matter how often they are refetched.
func maxCreated(cursor int64, envs []domain.Envelope) int64 {
	for _, env := range envs {
		if env.CreatedAt > cursor {
			cursor = env.CreatedAt
		}
	}
	return cursor
}

func (c *Core) onKeyPackageFetched(t Task, envs []domain.Envelope) {
	intent, ok := c.invites[t.ID]
	if !ok {
		return // stale result
	}
	var chosen *domain.KeyPackage
	for _, env := range envs {
		kp, err := c.eng.ParseKeyPackage(env)
		if err != nil {
			c.log.Debug("discarding key package", "id", string(env.ID), "err", err)
			continue
		}
		if kp.Owner != intent.Target || c.usedRemoteKPs[kp.ID] {
			continue
		}
		chosen = &kp
		break
	}
	if chosen == nil {
		// nothing published yet; keep polling while the budget lasts
		if t.Attempt+1 < c.cfg.Retry.MaxAttempts {
			t.Attempt++
			c.runner.After(nextBackoffDelay(c.cfg.Retry, t.Attempt, c.rng), t)
			return
		}
		delete(c.invites, t.ID)
		c.notice = "no key package found for " + shortKey(intent.Target)
		return
	}
	delete(c.invites, t.ID)
	c.usedRemoteKPs[chosen.ID] = true
	if intent.Group != "" {
		c.addMember(intent.Group, *chosen)
		return
	}
	c.createGroup(*chosen)
}

func (c *Core) createGroup(kp domain.KeyPackage) {
	name := "chat-" + shortKey(kp.Owner)
	gid, welcome, err := c.eng.CreateGroup(name, kp)
	if err != nil {
		c.notice = "create group: " + err.Error()
		return
	}
	if err := c.eng.MergePendingCommit(gid); err != nil {
		c.notice = "merge commit: " + err.Error()
		return
	}
	c.publishWelcome(welcome)
	g, ok, err := c.store.LoadGroup(gid)
	if err != nil || !ok {
		c.notice = "load group after create failed"
		return
	}
	c.cacheGroup(g)
	c.active = gid
	c.recomputePhase()
	c.notice = "created " + g.Name
}

func (c *Core) addMember(gid domain.GroupID, kp domain.KeyPackage) {
	welcome, update, err := c.eng.AddMember(gid, kp)
	if err != nil {
		c.notice = "add member: " + err.Error()
		return
	}
	if err := c.eng.MergePendingCommit(gid); err != nil {
		c.notice = "merge commit: " + err.Error()
		return
	}
	c.publishWelcome(welcome)
	// tell the members who were already in: the update travels as an
	// ordinary group message they can decrypt with the key they hold
	c.runner.Do(Task{ID: uuid.New(), Op: opPublishMessage, Env: update, Group: gid})
	if g, ok, err := c.store.LoadGroup(gid); err == nil && ok {
		c.cacheGroup(g)
	}
	c.notice = "invited " + shortKey(kp.Owner)
}

func (c *Core) publishWelcome(w domain.WelcomeRumor) {
	env, err := c.eng.WrapRumor(w.Recipient, w.InitKey, w.Rumor)
	if err != nil {
		c.notice = "wrap welcome: " + err.Error()
		return
	}
	c.runner.Do(Task{ID: uuid.New(), Op: opPublishWelcome, Env: env})
}

func (c *Core) onWraps(envs []domain.Envelope) {
	for _, env := range envs {
		join, err := c.eng.UnwrapWelcome(env)
		if err != nil {
			if domain.IsViolation(err) {
				c.log.Debug("discarding wrap", "id", string(env.ID), "err", err)
			} else {
				c.log.Warn("unwrap failed", "id", string(env.ID), "err", err)
			}
			continue
		}
		gid := join.Group.ID
		if _, known := c.groups[gid]; known {
			continue // replayed welcome
		}
		if err := c.eng.MergePendingCommit(gid); err != nil {
			c.notice = "merge commit: " + err.Error()
			continue
		}
		g, ok, err := c.store.LoadGroup(gid)
		if err != nil || !ok {
			c.notice = "load group after join failed"
			continue
		}
		c.cacheGroup(g)
		if c.active == "" {
			c.active = gid
		}
		c.recomputePhase()
		c.notice = "joined " + g.Name
		c.drainPending(g.WireID)
		// the key package that admitted us is now consumed; mint a new one
		c.ensureKeyPackage()
	}
}

func (c *Core) onGroupMessages(envs []domain.Envelope) {
	for _, env := range envs {
		c.applyGroupMessage(env)
	}
}

func (c *Core) applyGroupMessage(env domain.Envelope) {
	gid, known := c.byTag[env.GroupTag]
	if !known {
		c.pending.add(env.GroupTag, env)
		return
	}
	seen, err := c.store.HasMessage(env.ID)
	if err != nil {
		c.log.Warn("dedupe check", "id", string(env.ID), "err", err)
		return
	}
	if seen {
		return
	}
	msg, err := c.eng.DecryptEnvelope(env)
	if err != nil {
		if errors.Is(err, domain.ErrEpochNotReady) {
			c.pending.add(env.GroupTag, env)
			return
		}
		c.log.Debug("discarding message", "id", string(env.ID), "err", err)
		return
	}
	if err := c.store.AppendMessage(msg); err != nil {
		c.notice = "store message: " + err.Error()
		return
	}
	c.history[gid] = append(c.history[gid], msg)
	if msg.Update {
		// a membership change landed; merge it and replay anything that
		// arrived under the new epoch before the change itself did
		if err := c.eng.MergePendingCommit(gid); err != nil {
			c.notice = "merge commit: " + err.Error()
			return
		}
		if g, ok, err := c.store.LoadGroup(gid); err == nil && ok {
			c.cacheGroup(g)
		}
		c.notice = msg.Content
		c.drainPending(env.GroupTag)
	}
}

// drainPending replays buffered envelopes for a wire tag through the normal
// apply path. Anything still undecryptable goes straight back in the buffer.
func (c *Core) drainPending(tag string) {
	for _, env := range c.pending.take(tag) {
		c.applyGroupMessage(env)
	}
}

func (c *Core) onInput(text string) {
	line := strings.TrimSpace(text)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "/") {
		c.sendMessage(line)
		return
	}
	fields := strings.Fields(line)
	switch fields[0] {
	case "/invite":
		if len(fields) != 2 {
			c.notice = "usage: /invite <pubkey-hex>"
			return
		}
		pk, ok := domain.ParsePublicKey(fields[1])
		if !ok {
			c.notice = "bad public key"
			return
		}
		c.lookupKeyPackage(pk, "")
	case "/add":
		if len(fields) != 2 {
			c.notice = "usage: /add <pubkey-hex>"
			return
		}
		if c.active == "" {
			c.notice = "no active group"
			return
		}
		pk, ok := domain.ParsePublicKey(fields[1])
		if !ok {
			c.notice = "bad public key"
			return
		}
		c.lookupKeyPackage(pk, c.active)
	case "/switch":
		if len(fields) != 2 {
			c.notice = "usage: /switch <n>"
			return
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 || n > len(c.groupOrder) {
			c.notice = "no such group"
			return
		}
		c.active = c.groupOrder[n-1]
		c.recomputePhase()
		c.notice = "switched to " + c.groups[c.active].Name
	case "/groups":
		c.notice = fmt.Sprintf("%d group(s)", len(c.groupOrder))
	case "/help":
		c.notice = "/invite <pk>  /add <pk>  /switch <n>  /groups  /quit"
	default:
		c.notice = "unknown command " + fields[0]
	}
}

func (c *Core) lookupKeyPackage(target domain.PublicKey, gid domain.GroupID) {
	id := uuid.New()
	c.invites[id] = inviteIntent{Target: target, Group: gid}
	c.runner.Do(Task{
		ID: id,
		Op: opFetchKeyPackage,
		Filter: domain.Filter{
			Kinds:   []domain.EnvelopeKind{domain.KindKeyPackage},
			Authors: []domain.PublicKey{target},
			Limit:   8,
		},
	})
	c.notice = "looking up key package for " + shortKey(target)
}

func (c *Core) sendMessage(text string) {
	if c.active == "" {
		c.notice = "no active group; /invite <pubkey> to start one"
		return
	}
	env, err := c.eng.EncryptMessage(c.active, []byte(text))
	if err != nil {
		if errors.Is(err, domain.ErrEpochNotReady) {
			c.notice = "group has a pending commit; try again shortly"
		} else {
			c.notice = "encrypt: " + err.Error()
		}
		return
	}
	// optimistic echo through the same decode path remote peers use
	if msg, err := c.eng.DecryptEnvelope(env); err == nil {
		if err := c.store.AppendMessage(msg); err == nil {
			c.history[c.active] = append(c.history[c.active], msg)
		}
	}
	// encryption advanced the outbound sequence; refresh the cached state
	if g, ok, err := c.store.LoadGroup(c.active); err == nil && ok {
		c.groups[c.active] = g
	}
	c.runner.Do(Task{ID: uuid.New(), Op: opPublishMessage, Env: env, Group: c.active})
}

// onTick schedules the periodic fetches. Scheduling only: the actual network
// round-trips happen in the runner, results come back as events. At most one
// fetch per kind (and per group) is in flight at a time.
func (c *Core) onTick() {
	if c.phase == domain.PhaseInitializing {
		// keep nudging the key-package publish until it lands
		c.ensureKeyPackage()
		return
	}
	if !c.fetchingWraps {
		c.fetchingWraps = true
		c.runner.Do(Task{
			ID: uuid.New(),
			Op: opFetchWraps,
			Filter: domain.Filter{
				Kinds:     []domain.EnvelopeKind{domain.KindWrap},
				Recipient: c.id.PublicKey().Hex(),
				Since:     c.fetchSince(c.sinceWraps),
			},
		})
	}
	for _, gid := range c.groupOrder {
		if c.fetchingMsgs[gid] {
			continue
		}
		g := c.groups[gid]
		c.fetchingMsgs[gid] = true
		c.runner.Do(Task{
			ID:    uuid.New(),
			Op:    opFetchMessages,
			Group: gid,
			Filter: domain.Filter{
				Kinds:    []domain.EnvelopeKind{domain.KindGroupMessage},
				GroupTag: g.WireID,
				Since:    c.fetchSince(c.sinceMsgs[gid]),
			},
		})
	}
}

// fetchSince turns a cursor into a relay filter bound. The window is an
// overlap against relay clock skew; a zero cursor asks for everything.
func (c *Core) fetchSince(cursor int64) int64 {
	if cursor == 0 {
		return 0
	}
	s := cursor - int64(c.cfg.FetchWindow/time.Second)
	if s < 0 {
		s = 0
	}
	return s
}

func shortKey(pk domain.PublicKey) string {
	h := pk.Hex()
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
