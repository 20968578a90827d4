package relay_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"marlin/internal/domain"
	"marlin/internal/relay"
)

func newClient(t *testing.T) (*relay.HTTP, *relay.Server) {
	t.Helper()
	srv := relay.NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return relay.NewHTTP(ts.URL, ts.Client()), srv
}

func TestPublishAndFetchByKind(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	var author domain.PublicKey
	author[0] = 0xab

	require.NoError(t, c.Publish(ctx, domain.Envelope{
		ID: "e-1", Kind: domain.KindKeyPackage, Author: author, CreatedAt: 1,
	}))
	require.NoError(t, c.Publish(ctx, domain.Envelope{
		ID: "e-2", Kind: domain.KindGroupMessage, GroupTag: "tag", CreatedAt: 2,
	}))

	got, err := c.Fetch(ctx, domain.Filter{Kinds: []domain.EnvelopeKind{domain.KindKeyPackage}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.EnvelopeID("e-1"), got[0].ID)

	got, err = c.Fetch(ctx, domain.Filter{GroupTag: "tag"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.EnvelopeID("e-2"), got[0].ID)
}

func TestPublishIsIdempotentByID(t *testing.T) {
	c, srv := newClient(t)
	ctx := context.Background()

	env := domain.Envelope{ID: "dup", Kind: domain.KindWrap, Recipient: "cafe"}
	require.NoError(t, c.Publish(ctx, env))
	require.NoError(t, c.Publish(ctx, env))
	require.Equal(t, 1, srv.Count())
}

func TestFetchByRecipientAndSince(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, domain.Envelope{ID: "old", Kind: domain.KindWrap, Recipient: "me", CreatedAt: 5}))
	require.NoError(t, c.Publish(ctx, domain.Envelope{ID: "new", Kind: domain.KindWrap, Recipient: "me", CreatedAt: 50}))
	require.NoError(t, c.Publish(ctx, domain.Envelope{ID: "other", Kind: domain.KindWrap, Recipient: "you", CreatedAt: 50}))

	got, err := c.Fetch(ctx, domain.Filter{Recipient: "me", Since: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, domain.EnvelopeID("new"), got[0].ID)
}

func TestFetchFailureIsTransient(t *testing.T) {
	c := relay.NewHTTP("http://127.0.0.1:1", nil) // nothing listens here
	_, err := c.Fetch(context.Background(), domain.Filter{})
	require.Error(t, err)
	require.True(t, domain.IsTransient(err))
}
