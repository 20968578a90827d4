// Package render defines the snapshot the session core hands the UI layer
// after every applied event: a pure projection of session state with no
// behavior attached.
package render

import "marlin/internal/domain"

// GroupView is one row of the group list.
type GroupView struct {
	ID      domain.GroupID
	Name    string
	Members int
	Epoch   uint64
	Pending bool // pending commit not yet merged
}

// Snapshot is what the UI renders. It is immutable by convention; the core
// builds a fresh one per event.
type Snapshot struct {
	State       domain.AppState
	Fingerprint domain.Fingerprint
	Groups      []GroupView
	Messages    []domain.Message // history of the active group
	Notice      string           // transient, most recent wins
}
