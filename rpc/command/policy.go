package command

import "sync/atomic"

// DuplicatePolicy decides what WireUp does with a command that already has a handler
type DuplicatePolicy int32

const (
	// IgnoreDuplicates keeps the first handler, the call is a no-op
	IgnoreDuplicates DuplicatePolicy = iota
	// RejectDuplicates makes WireUp fail with ErrDuplicateCommand
	RejectDuplicates
)

func (d DuplicatePolicy) String() string {
	switch d {
	case IgnoreDuplicates:
		return "ignore"
	case RejectDuplicates:
		return "reject"
	default:
		return "unknown"
	}
}

var duplicatePolicy atomic.Int32

// SetDuplicatePolicy sets the policy for all protocols of this process
func SetDuplicatePolicy(policy DuplicatePolicy) {
	duplicatePolicy.Store(int32(policy))
}

// GetDuplicatePolicy returns the current policy
func GetDuplicatePolicy() DuplicatePolicy {
	return DuplicatePolicy(duplicatePolicy.Load())
}
