package client

// State is client_state from spec §3/§4E.
type State int

const (
	Ready State = iota
	KeepAliveRequesting
	KeepAliveUnfulfilled
	CredRequesting
	CredUnfulfilled
	TimeToQuit
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case KeepAliveRequesting:
		return "KeepAliveRequesting"
	case KeepAliveUnfulfilled:
		return "KeepAliveUnfulfilled"
	case CredRequesting:
		return "CredRequesting"
	case CredUnfulfilled:
		return "CredUnfulfilled"
	case TimeToQuit:
		return "TimeToQuit"
	default:
		return "Unknown"
	}
}

// canRequest reports whether a keep_alive or cred_update request may be sent
// from this state (spec §8 property 5: "only emitted in
// Ready/*Requesting/*Unfulfilled").
func (s State) canRequest() bool {
	switch s {
	case Ready, KeepAliveRequesting, KeepAliveUnfulfilled, CredRequesting, CredUnfulfilled:
		return true
	default:
		return false
	}
}
