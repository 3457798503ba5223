package projection

import (
	"errors"
	"fmt"
)

// FaultKind discriminates the ways a projection can fault (SPEC_FULL.md §7).
type FaultKind int

const (
	// FaultInvalidState is raised when a message arrives while the
	// lifecycle is not in one of the states it allows.
	FaultInvalidState FaultKind = iota
	// FaultHandlerFailure is raised when the user handler returns an
	// error or an inconsistent result.
	FaultHandlerFailure
	// FaultStateLoadFailure is raised when checkpoint or partition state
	// recovery fails to deserialize or read.
	FaultStateLoadFailure
	// FaultPolicyViolation is raised when the handler emits events while
	// emission is disabled by configuration.
	FaultPolicyViolation
)

func (k FaultKind) String() string {
	switch k {
	case FaultInvalidState:
		return "invalid-state"
	case FaultHandlerFailure:
		return "handler-failure"
	case FaultStateLoadFailure:
		return "state-load-failure"
	case FaultPolicyViolation:
		return "policy-violation"
	default:
		return "unknown"
	}
}

// FaultError is the error the lifecycle state machine records as the
// reason for entering FaultedStopping or Faulted. It is never propagated
// past the runtime boundary; the only user-visible surface is the
// Faulted{Reason} bus message built from Error().
type FaultError struct {
	Kind FaultKind
	Msg  string
}

func (e *FaultError) Error() string { return e.Msg }

// ErrEmitNotAllowed is the policy-violation fault raised when a handler
// emits events while the runtime is configured with EmitEventEnabled=false.
var ErrEmitNotAllowed = errors.New("emit not allowed by the projection/configuration/mode")

func invalidStateFault(got State, allowed []State) *FaultError {
	return &FaultError{Kind: FaultInvalidState, Msg: fmt.Sprintf("invalid state %s, expected one of %v", got, allowed)}
}

func handlerFailureFault(projectionName, handlerType string, position int64, err error) *FaultError {
	return &FaultError{
		Kind: FaultHandlerFailure,
		Msg:  fmt.Sprintf("handler failure in projection %q (%s) at position %d: %v", projectionName, handlerType, position, err),
	}
}

func stateLoadFailureFault(err error) *FaultError {
	return &FaultError{Kind: FaultStateLoadFailure, Msg: fmt.Sprintf("state load failure: %v", err)}
}

func policyViolationFault(err error) *FaultError {
	return &FaultError{Kind: FaultPolicyViolation, Msg: err.Error()}
}
