package interfaces

import (
	"context"

	domaintypes "marlin/internal/domain/types"
)

// RelayClient is how we talk to the relay network. The relay gives no
// ordering or delivery guarantees; callers must be idempotent.
type RelayClient interface {
	// Publish submits one event to the relay.
	Publish(ctx context.Context, env domaintypes.Envelope) error

	// Fetch returns the events matching the filter known to the relay at
	// poll time. Finite per poll, restartable.
	Fetch(ctx context.Context, f domaintypes.Filter) ([]domaintypes.Envelope, error)
}
