package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"marlin/internal/crypto"
	"marlin/internal/domain"
	"marlin/internal/store"
)

// backends returns one of each storage implementation under a shared name so
// every contract test runs against both.
func backends(t *testing.T) map[string]domain.Store {
	t.Helper()
	sq, err := store.OpenSQLite(filepath.Join(t.TempDir(), "marlin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]domain.Store{
		"memory": store.NewMemory(),
		"sqlite": sq,
	}
}

func testIdentity(t *testing.T) domain.Identity {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	return id
}

func TestIdentityRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.LoadIdentity("pw")
			require.NoError(t, err)
			require.False(t, ok)

			id := testIdentity(t)
			require.NoError(t, s.SaveIdentity("pw", id))

			got, ok, err := s.LoadIdentity("pw")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, id, got)

			_, _, err = s.LoadIdentity("wrong")
			require.Error(t, err)
		})
	}
}

func TestMarkConsumedIsAtomic(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pair := domain.KeyPackagePair{
				KeyPackage: domain.KeyPackage{ID: "kp-1", CreatedAt: 10},
			}
			require.NoError(t, s.SaveKeyPackage(pair))

			ok, err := s.MarkConsumed("kp-1")
			require.NoError(t, err)
			require.True(t, ok, "first consume succeeds")

			ok, err = s.MarkConsumed("kp-1")
			require.NoError(t, err)
			require.False(t, ok, "second consume is rejected")

			got, found, err := s.LoadKeyPackage("kp-1")
			require.NoError(t, err)
			require.True(t, found)
			require.True(t, got.Consumed)

			ok, err = s.MarkConsumed("unknown")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestGroupRoundTripAndWireTag(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			g := domain.GroupState{
				ID:            "g-1",
				WireID:        "tag-1",
				Name:          "ops",
				Epoch:         3,
				PendingCommit: true,
			}
			require.NoError(t, s.SaveGroup(g))

			got, ok, err := s.LoadGroup("g-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, g, got)

			byTag, ok, err := s.LoadGroupByWireTag("tag-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, g.ID, byTag.ID)

			_, ok, err = s.LoadGroupByWireTag("nope")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.DeleteGroup("g-1"))
			_, ok, err = s.LoadGroup("g-1")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestMessageHistoryIsAppendOrderAndIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			msgs := []domain.Message{
				{EnvelopeID: "e-1", GroupID: "g", Seq: 0, CreatedAt: 30, Content: "late clock"},
				{EnvelopeID: "e-2", GroupID: "g", Seq: 1, CreatedAt: 10, Content: "early clock"},
				{EnvelopeID: "e-3", GroupID: "g", Seq: 2, CreatedAt: 20, Content: "mid clock"},
			}
			for _, m := range msgs {
				require.NoError(t, s.AppendMessage(m))
			}
			// Replay must not duplicate.
			require.NoError(t, s.AppendMessage(msgs[1]))

			got, err := s.ListMessages("g", 0)
			require.NoError(t, err)
			require.Len(t, got, 3)
			for i := range msgs {
				require.Equal(t, msgs[i].EnvelopeID, got[i].EnvelopeID, "receipt order preserved")
			}

			has, err := s.HasMessage("e-2")
			require.NoError(t, err)
			require.True(t, has)

			tail, err := s.ListMessages("g", 2)
			require.NoError(t, err)
			require.Len(t, tail, 2)
			require.Equal(t, domain.EnvelopeID("e-2"), tail[0].EnvelopeID)
			require.Equal(t, domain.EnvelopeID("e-3"), tail[1].EnvelopeID)
		})
	}
}
