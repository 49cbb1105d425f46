package exchange

// State is a step of the exchange protocol. States only move forward.
type State int

const (
	StateInit State = iota
	StateInstantiated
	StatePointerObtained
	StateWritten
	StateTransformed
	StatePointerRefreshed
	StateRead
	StateValidated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateInstantiated:
		return "instantiated"
	case StatePointerObtained:
		return "pointer_obtained"
	case StateWritten:
		return "written"
	case StateTransformed:
		return "transformed"
	case StatePointerRefreshed:
		return "pointer_refreshed"
	case StateRead:
		return "read"
	case StateValidated:
		return "validated"
	}
	return "unknown"
}

// Terminal reports whether no state follows s.
func (s State) Terminal() bool {
	return s == StateValidated
}
