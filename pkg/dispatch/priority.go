package dispatch

import "fmt"

// Priority is a handler tier. Higher values run first.
type Priority uint8

const (
	// Watcher handlers observe messages that no earlier tier cancelled.
	Watcher Priority = iota

	// DefaultAction is the canonical handling of a message. By convention
	// there is exactly one per message id.
	DefaultAction

	// LowPriority handlers run after HighPriority and before DefaultAction.
	LowPriority

	// HighPriority handlers run first and usually decide whether to cancel.
	HighPriority
)

// numTiers is the number of Priority values.
const numTiers = 4

// Order is the fixed dispatch order, highest precedence first.
var Order = [numTiers]Priority{HighPriority, LowPriority, DefaultAction, Watcher}

// String returns the tier name.
func (p Priority) String() string {
	switch p {
	case Watcher:
		return "Watcher"
	case DefaultAction:
		return "DefaultAction"
	case LowPriority:
		return "LowPriority"
	case HighPriority:
		return "HighPriority"
	default:
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the four tiers.
func (p Priority) Valid() bool {
	return p <= HighPriority
}
