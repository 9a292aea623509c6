package rhc

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with [errors.Is] (§7 "Error kinds").
var (
	// ErrConditionCapacity is returned by AddCondition when all 64
	// query-condition qcmask bits are in use.
	ErrConditionCapacity = errors.New("rhc: query-condition capacity exhausted")

	// ErrPreconditionNotMet is returned for an invalid entity
	// reference: an instance handle unknown to ReadInstance/TakeInstance,
	// a nil or empty Condition, or a Condition passed to RemoveCondition
	// that is not attached to this RHC. Read and Take do not check that
	// a Condition belongs to this RHC.
	ErrPreconditionNotMet = errors.New("rhc: precondition not met")

	// ErrClosed is returned after Free by Store, Read, Take,
	// ReadInstance, TakeInstance, AddCondition, UnregisterWriter and
	// RelinquishOwnership.
	ErrClosed = errors.New("rhc: use of a freed reader history cache")
)

// Error is the uniform error type returned by public RHC APIs. It
// wraps a sentinel with the instance/writer context that caused it.
//
// Use [errors.Is] to check for one of the sentinels above; use
// [errors.As] to recover the structured fields:
//
//	var rErr *rhc.Error
//	if errors.As(err, &rErr) {
//	    log.Printf("failed for instance %d", rErr.InstanceHandle)
//	}
type Error struct {
	// InstanceHandle is the instance the operation concerned, if any.
	InstanceHandle InstanceHandle

	// WriterIID is the writer the operation concerned, if any.
	WriterIID uint64

	// HasInstanceHandle/HasWriterIID distinguish "zero value" from
	// "not applicable", since 0 is a legal handle/iid.
	HasInstanceHandle bool
	HasWriterIID      bool

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()
	if suffix == "" {
		return cause
	}

	if cause == "" {
		return suffix
	}

	return cause + " " + suffix
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	s := ""

	if e.HasInstanceHandle {
		s += fmt.Sprintf(" instance=%d", e.InstanceHandle)
	}

	if e.HasWriterIID {
		s += fmt.Sprintf(" writer=%d", e.WriterIID)
	}

	if s == "" {
		return ""
	}

	return "(" + s[1:] + ")"
}

// errOpt configures an [Error] during construction via [wrapErr].
type errOpt func(*Error)

func withInstance(h InstanceHandle) errOpt {
	return func(e *Error) {
		e.InstanceHandle = h
		e.HasInstanceHandle = true
	}
}

// wrapErr attaches structured context to err, returning an [*Error].
// Returns nil if err is nil.
func wrapErr(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}

	e := &Error{Err: err}

	var existing *Error
	if errors.As(err, &existing) {
		e.InstanceHandle = existing.InstanceHandle
		e.HasInstanceHandle = existing.HasInstanceHandle
		e.WriterIID = existing.WriterIID
		e.HasWriterIID = existing.HasWriterIID
		e.Err = existing.Err
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}
