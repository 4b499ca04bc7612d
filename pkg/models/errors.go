package models

import (
	"errors"
	"fmt"
	"strings"
)

// Decomposition failure reasons.
const (
	// ReasonUnresolvableConflict means no safe claim-disjoint partition was
	// found within the attempt budget.
	ReasonUnresolvableConflict = "unresolvable-conflict"
	// ReasonMalformedTask means the task itself was unusable (e.g. empty goal).
	ReasonMalformedTask = "malformed-task"
)

// ReasonGatewayUnavailable is the deny reason used when a gateway-internal
// fault (hook timeout, decider error) forces a fail-closed decision.
const ReasonGatewayUnavailable = "gateway-unavailable"

// ErrGatewayUnavailable marks gateway infrastructure faults. The gateway
// never fails open: callers see a deny decision carrying
// ReasonGatewayUnavailable alongside this error class.
var ErrGatewayUnavailable = errors.New(ReasonGatewayUnavailable)

// DecompositionError reports that no safe subtask partition exists. It is
// fatal to the current operation; the caller decides whether to retry with a
// narrower scope or fall back to single-subtask execution.
type DecompositionError struct {
	// Reason is one of the Reason* constants.
	Reason string
	// Attempts is how many planner attempts were consumed.
	Attempts int
	// Conflicts describes the claim conflicts seen on the last attempt.
	Conflicts []string
}

// Error implements the error interface.
func (e *DecompositionError) Error() string {
	if len(e.Conflicts) == 0 {
		return fmt.Sprintf("decomposition failed (%s) after %d attempt(s)", e.Reason, e.Attempts)
	}
	return fmt.Sprintf("decomposition failed (%s) after %d attempt(s): %s",
		e.Reason, e.Attempts, strings.Join(e.Conflicts, "; "))
}

// IsDecompositionError reports whether err is a DecompositionError and, if
// so, returns it.
func IsDecompositionError(err error) (*DecompositionError, bool) {
	var de *DecompositionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
