package aggregator

import "errors"

// Structured error kinds for the aggregation core. Callers branch with
// errors.Is instead of matching message strings.
var (
	// ErrWrongFactory marks input carrying a factory identifier that does
	// not match this node's.
	ErrWrongFactory = errors.New("factory identifier mismatch")

	// ErrUnknownTarget marks a directive addressed to a module the registry
	// has never seen.
	ErrUnknownTarget = errors.New("unknown target module")

	// ErrDeliveryFailed marks a transient outbound delivery failure.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrTransportFatal marks an unrecoverable transport condition; the node
	// cannot operate without its link.
	ErrTransportFatal = errors.New("transport fatal")
)
