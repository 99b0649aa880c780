// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

// Package errors provides the error type used across the networking core.
// Errors capture a stack trace on creation (via go-errors/errors) and carry
// optional structured fields so that a single value can be both returned to
// a caller and logged without re-deriving context.
package errors

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
	pkgerrors "github.com/pkg/errors"
)

// KV is a single structured field attached to an error or a log line.
type KV struct {
	Key   string
	Value any
}

// NewKV builds a KV pair. Shared with the logging package so the same
// fields can be handed to errors.WithStack and logging.Logger.Info alike.
func NewKV(key string, value any) KV {
	return KV{Key: key, Value: value}
}

// withFields is an error decorated with structured fields and a captured
// stack trace.
type withFields struct {
	err    error
	fields []KV
}

func (e *withFields) Error() string {
	if len(e.fields) == 0 {
		return e.err.Error()
	}
	msg := e.err.Error()
	for _, kv := range e.fields {
		msg = fmt.Sprintf("%s %s=%v", msg, kv.Key, kv.Value)
	}
	return msg
}

func (e *withFields) Unwrap() error { return e.err }

// Fields returns the structured fields attached to err, if any.
func Fields(err error) []KV {
	var wf *withFields
	if stderrors.As(err, &wf) {
		return wf.fields
	}
	return nil
}

// New creates an error with a captured stack trace.
func New(msg string) error {
	return goerrors.New(msg)
}

// Newf creates a formatted error with a captured stack trace.
func Newf(format string, args ...any) error {
	return goerrors.Errorf(format, args...)
}

// Wrap annotates err with msg, preserving the original error for errors.Is
// and errors.As. Mirrors the teacher's errors.Wrap(msg, err) call shape.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// WithStack attaches structured fields to err for later logging, capturing a
// stack trace if err does not already carry one.
func WithStack(err error, fields ...KV) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*goerrors.Error); !ok {
		err = goerrors.Wrap(err, 1)
	}
	return &withFields{err: err, fields: fields}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Query errors: recoverable, returned to callers via a QueryChannel.
var (
	// ErrBlockNotFound is returned when a sync is attempted with no
	// available providers for the first missing block.
	ErrBlockNotFound = New("block not found")
	// ErrQuorumFailure is returned when a put_record/get_record does not
	// collect enough acknowledging peers to satisfy its quorum.
	ErrQuorumFailure = New("quorum not reached")
	// ErrNoProviders is returned when a provider query yields no peers.
	ErrNoProviders = New("no providers found")
	// ErrInsufficientPeers is returned by publish when the local node has
	// no mesh peers for the topic.
	ErrInsufficientPeers = New("insufficient peers for topic")
	// ErrTimeout names a query that exceeded its deadline. No function in
	// this module returns it: a query handle whose context ends reports
	// ctx.Err() instead.
	ErrTimeout = New("query timed out")
	// ErrUnknownQuery is returned by a query handle's Wait when the query's
	// channel was closed without a result, i.e. the query was cancelled.
	ErrUnknownQuery = New("unknown query id")
	// ErrListenerClosed marks a listener stream as terminated.
	ErrListenerClosed = New("listener closed")
)

// BlockNotFound wraps ErrBlockNotFound with the offending content id so
// callers can report exactly which block was unreachable.
func BlockNotFound(cidStr string) error {
	return Wrap(fmt.Sprintf("cid %s", cidStr), ErrBlockNotFound)
}
