package core

// Action is the kind of classification outcome.
type Action uint8

const (
	// ActionForward transmits the frame out every interface in Egress.
	ActionForward Action = iota
	// ActionDrop discards the frame without transmission.
	ActionDrop
)

// DropReason explains why a frame was not forwarded.
type DropReason string

const (
	ReasonRule           DropReason = "rule"             // An explicit drop rule matched
	ReasonDefault        DropReason = "default"          // No rule matched, default action is drop
	ReasonNoViableEgress DropReason = "no-viable-egress" // Hairpin filtering emptied the egress set
)

// DefaultRule is the Rule value of a Decision produced by the default action.
const DefaultRule = -1

// Decision is the immutable outcome of classifying one frame.
// Egress is never mutated after compilation; dispatch must not modify it.
type Decision struct {
	Action Action
	Egress []string   // Target interface names; nil unless ActionForward
	Reason DropReason // Set for ActionDrop
	Rule   int        // Index of the matching rule, DefaultRule for the default action
}

// Forwarded reports whether the decision transmits the frame anywhere.
func (d Decision) Forwarded() bool {
	return d.Action == ActionForward && len(d.Egress) > 0
}
