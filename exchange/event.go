package exchange

import "github.com/wippyai/passing-data/bridge"

// Op names a bridge operation performed by the driver.
type Op string

const (
	OpInstantiate   Op = "instantiate"
	OpResolve       Op = "resolve"
	OpCallPointer   Op = "call_pointer"
	OpWrite         Op = "write"
	OpCallTransform Op = "call_transform"
	OpRead          Op = "read"
	OpValidate      Op = "validate"
)

// Event describes one completed bridge operation. State is the driver
// state after the operation. Pointer is set for pointer calls, writes and
// reads; Length for writes, transform calls, reads and validation.
type Event struct {
	Op         Op
	State      State
	Export     string
	Pointer    bridge.Pointer
	Length     uint32
	Generation uint64
}

// Observer receives events in the order the driver performs them. It runs
// on the driver's goroutine.
type Observer func(Event)
