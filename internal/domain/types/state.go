package types

// Phase is the session core's externally-observable mode.
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseReady
	PhaseInGroup
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseInGroup:
		return "in-group"
	default:
		return "unknown"
	}
}

// AppState is the externally-observable session state. Transitions are driven
// exclusively by bus events.
type AppState struct {
	Phase     Phase
	Published bool
	Groups    []GroupID
	Active    GroupID // set while Phase == PhaseInGroup
}
