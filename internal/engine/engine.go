package engine

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"

	"marlin/internal/crypto"
	"marlin/internal/domain"
	"marlin/internal/logging"
)

// KDF labels. Changing either invalidates every group on the wire.
var (
	infoWrap  = []byte("marlin-wrap-v1")
	infoEpoch = []byte("marlin-epoch-v1")
)

// Engine implements the group protocol: key packages, group formation,
// welcomes and epoch-keyed message encryption. It talks only to the storage
// contract and is driven single-threaded by the session core.
type Engine struct {
	id    domain.Identity
	store domain.Store
	log   logging.Logger
}

var _ domain.Engine = (*Engine)(nil)

// New constructs an Engine for the given identity and store.
func New(id domain.Identity, store domain.Store, log logging.Logger) *Engine {
	return &Engine{id: id, store: store, log: log}
}

// epochKey derives the message key for a group's current epoch.
func epochKey(g domain.GroupState) ([]byte, error) {
	salt := make([]byte, 8)
	binary.BigEndian.PutUint64(salt, g.Epoch)
	return crypto.DeriveKey(g.Secret[:], salt, infoEpoch, chacha20poly1305.KeySize)
}

// MergePendingCommit finalises the group's current epoch. A merge on a group
// with no pending commit is a no-op.
func (e *Engine) MergePendingCommit(gid domain.GroupID) error {
	g, ok, err := e.store.LoadGroup(gid)
	if err != nil {
		return domain.Storage("load group", err)
	}
	if !ok {
		return domain.Violation("merge on unknown group "+gid.String(), nil)
	}
	if !g.PendingCommit {
		return nil
	}
	g.PendingCommit = false
	if err := e.store.SaveGroup(g); err != nil {
		return domain.Storage("save group", err)
	}
	e.log.Debug("merged pending commit", "group", gid, "epoch", g.Epoch)
	return nil
}

func now() int64 { return time.Now().Unix() }

func newEnvelopeID() domain.EnvelopeID { return domain.EnvelopeID(uuid.NewString()) }
