package store

import (
	"encoding/json"
	"sort"
	"sync"

	"marlin/internal/domain"
)

// Memory is the volatile storage backend. Everything lives in maps and is
// gone when the process exits. The identity still goes through the same
// passphrase envelope as the durable backend so the two are observationally
// identical to the core.
type Memory struct {
	mu sync.RWMutex

	identity []byte // encrypted blob, nil until saved
	kps      map[domain.KeyPackageID]domain.KeyPackagePair
	groups   map[domain.GroupID]domain.GroupState
	byTag    map[string]domain.GroupID
	msgs     map[domain.GroupID][]domain.Message
	seen     map[domain.EnvelopeID]bool
}

var _ domain.Store = (*Memory)(nil)

// NewMemory returns an empty volatile store.
func NewMemory() *Memory {
	return &Memory{
		kps:    make(map[domain.KeyPackageID]domain.KeyPackagePair),
		groups: make(map[domain.GroupID]domain.GroupState),
		byTag:  make(map[string]domain.GroupID),
		msgs:   make(map[domain.GroupID][]domain.Message),
		seen:   make(map[domain.EnvelopeID]bool),
	}
}

func (s *Memory) SaveIdentity(passphrase string, id domain.Identity) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	enc, err := encryptIdentity(passphrase, raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = enc
	return nil
}

func (s *Memory) LoadIdentity(passphrase string) (domain.Identity, bool, error) {
	s.mu.RLock()
	enc := s.identity
	s.mu.RUnlock()
	if enc == nil {
		return domain.Identity{}, false, nil
	}
	raw, err := decryptIdentity(passphrase, enc)
	if err != nil {
		return domain.Identity{}, false, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, false, err
	}
	return id, true, nil
}

func (s *Memory) SaveKeyPackage(pair domain.KeyPackagePair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kps[pair.ID] = pair
	return nil
}

func (s *Memory) LoadKeyPackage(id domain.KeyPackageID) (domain.KeyPackagePair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.kps[id]
	return p, ok, nil
}

func (s *Memory) ListKeyPackages() ([]domain.KeyPackagePair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.KeyPackagePair, 0, len(s.kps))
	for _, p := range s.kps {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Memory) MarkConsumed(id domain.KeyPackageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.kps[id]
	if !ok || p.Consumed {
		return false, nil
	}
	p.Consumed = true
	s.kps[id] = p
	return true, nil
}

func (s *Memory) SaveGroup(g domain.GroupState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
	s.byTag[g.WireID] = g.ID
	return nil
}

func (s *Memory) LoadGroup(id domain.GroupID) (domain.GroupState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	return g, ok, nil
}

func (s *Memory) LoadGroupByWireTag(tag string) (domain.GroupState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTag[tag]
	if !ok {
		return domain.GroupState{}, false, nil
	}
	g, ok := s.groups[id]
	return g, ok, nil
}

func (s *Memory) ListGroups() ([]domain.GroupState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GroupState, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) DeleteGroup(id domain.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[id]; ok {
		delete(s.byTag, g.WireID)
	}
	delete(s.groups, id)
	delete(s.msgs, id)
	return nil
}

func (s *Memory) AppendMessage(m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[m.EnvelopeID] {
		return nil
	}
	s.seen[m.EnvelopeID] = true
	s.msgs[m.GroupID] = append(s.msgs[m.GroupID], m)
	return nil
}

func (s *Memory) HasMessage(id domain.EnvelopeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[id], nil
}

func (s *Memory) ListMessages(gid domain.GroupID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.msgs[gid]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *Memory) Close() error { return nil }
