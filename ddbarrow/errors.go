// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"errors"
	"fmt"
)

// ErrServer is a sentinel for use with errors.Is to check whether any error
// in a chain is a *ServerError.
var ErrServer = &ServerError{}

// ServerError wraps a failure reported by the connection collaborator.
type ServerError struct {
	Op  string // connect, login, run, call, upload
	Err error
}

func (e *ServerError) Error() string {
	prefix := "<Server Exception> in " + e.Op + ": "
	if e.Op == "connect" || e.Op == "login" {
		prefix = "<Server Exception> " + e.Op + ": "
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + e.Err.Error()
}

func (e *ServerError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *ServerError target.
func (e *ServerError) Is(target error) bool {
	_, ok := target.(*ServerError)
	return ok
}

// ErrConversion is a sentinel matching any *ConversionError.
var ErrConversion = &ConversionError{}

// ConversionError reports a value that could not be mapped between the host
// and remote value models.
type ConversionError struct {
	Op      string // "encode" or "decode"
	Subject string // offending host kind, form or type
	Message string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Subject, e.Message)
}

// Is supports errors.Is by matching any *ConversionError target.
func (e *ConversionError) Is(target error) bool {
	_, ok := target.(*ConversionError)
	return ok
}

// Registry state errors.
var (
	ErrStreamingNotEnabled   = errors.New("streaming is not enabled")
	ErrStreamingEnabled      = errors.New("streaming is already enabled")
	ErrSubscriptionExists    = errors.New("subscription already exists")
	ErrSubscriptionNotExists = errors.New("subscription not exists")
)

// StreamingError is a registry precondition failure or a wrapped transport
// failure during subscribe or unsubscribe.
type StreamingError struct {
	Op    string // listen, subscribe, unsubscribe
	Topic string
	Port  int
	Err   error
}

func (e *StreamingError) Error() string {
	var msg string
	switch {
	case errors.Is(e.Err, ErrStreamingEnabled):
		msg = fmt.Sprintf("streaming is already enabled on port %d", e.Port)
	case errors.Is(e.Err, ErrSubscriptionExists):
		msg = fmt.Sprintf("subscription %s already exists", e.Topic)
	case errors.Is(e.Err, ErrSubscriptionNotExists):
		msg = fmt.Sprintf("subscription %s not exists", e.Topic)
	case e.Err != nil:
		msg = e.Err.Error()
	}
	return "<API Exception> " + e.Op + ": " + msg
}

func (e *StreamingError) Unwrap() error { return e.Err }
