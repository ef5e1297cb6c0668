package hsm

import (
	"errors"
	"fmt"
)

var (
	ErrNilModel            = errors.New("model is nil")
	ErrNoTopStates         = errors.New("top states need to be provided")
	ErrMissingInitial      = errors.New("missing initial state")
	ErrInitialNotChild     = errors.New("initial state must be a direct substate")
	ErrUnknownState        = errors.New("unknown state")
	ErrDuplicateState      = errors.New("state already defined")
	ErrDuplicateInitial    = errors.New("initial state already designated")
	ErrDuplicateEntry      = errors.New("there can only be one entry action")
	ErrDuplicateExit       = errors.New("there can only be one exit action")
	ErrMissingTarget       = errors.New("transition requires a target")
	ErrMissingSource       = errors.New("transition requires a source")
	ErrNilEvent            = errors.New("transition requires an event source")
	ErrIncomparableEvent   = errors.New("event source must be comparable")
	ErrPayloadType         = errors.New("payload type does not match the event source")
	ErrInvalidPlacement    = errors.New("element declared in an invalid position")
	ErrAlreadyActive       = errors.New("state machine already activated")
	ErrTerminated          = errors.New("state machine terminated")
	ErrFailed              = errors.New("state machine failed during a transition and is no longer consistent")
	ErrReentrantTransition = errors.New("transition started while another transition is in progress")
)

// ConfigurationError reports a malformed model. It is returned while the
// model is defined, or when a runtime is built from it, and is never retried.
type ConfigurationError struct {
	Element string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Element == "" {
		return fmt.Sprintf("hsm: %v", e.Err)
	}
	return fmt.Sprintf("hsm: %s: %v", e.Element, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func IsConfigurationError(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
