// Package resource provides the tri-state value emitted by observable reads
package resource

import (
	"fmt"
	"reflect"
)

// State identifies which variant of a Resource is active
type State int

const (
	StateLoading State = iota
	StateSuccess
	StateError
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resource is an immutable value that is exactly one of Loading, Success or Error.
// Loading and Error may carry data; Success carries the authoritative data.
type Resource[T any] struct {
	state   State
	data    T
	hasData bool
	message string
	cause   error
}

// Loading creates a Loading resource. An absent value (see IsAbsent) yields no data.
func Loading[T any](data T) Resource[T] {
	return Resource[T]{state: StateLoading, data: data, hasData: !IsAbsent(data)}
}

// Success creates a Success resource
func Success[T any](data T) Resource[T] {
	return Resource[T]{state: StateSuccess, data: data, hasData: !IsAbsent(data)}
}

// Error creates an Error resource with a user-presentable message, the best
// available data and the underlying cause
func Error[T any](message string, data T, cause error) Resource[T] {
	return Resource[T]{state: StateError, message: message, data: data, hasData: !IsAbsent(data), cause: cause}
}

// State returns the active variant
func (r Resource[T]) State() State { return r.state }

// IsLoading reports whether r is Loading
func (r Resource[T]) IsLoading() bool { return r.state == StateLoading }

// IsSuccess reports whether r is Success
func (r Resource[T]) IsSuccess() bool { return r.state == StateSuccess }

// IsError reports whether r is Error
func (r Resource[T]) IsError() bool { return r.state == StateError }

// Data returns the carried data and whether it is present
func (r Resource[T]) Data() (T, bool) {
	return r.data, r.hasData
}

// HasData reports whether r carries data
func (r Resource[T]) HasData() bool { return r.hasData }

// Message returns the user-presentable error message, empty unless r is Error
func (r Resource[T]) Message() string { return r.message }

// Cause returns the underlying error, nil unless r is Error
func (r Resource[T]) Cause() error { return r.cause }

// String renders r for logs and debugging
func (r Resource[T]) String() string {
	switch r.state {
	case StateError:
		return fmt.Sprintf("Error(%q, hasData=%t)", r.message, r.hasData)
	default:
		return fmt.Sprintf("%s(hasData=%t)", r.state, r.hasData)
	}
}

// Map transforms the carried data while preserving the variant, the message
// and the cause. fn is not called when data is absent, and an absent result
// leaves the mapped Resource without data.
func Map[T, U any](r Resource[T], fn func(T) U) Resource[U] {
	out := Resource[U]{
		state:   r.state,
		hasData: r.hasData,
		message: r.message,
		cause:   r.cause,
	}
	if r.hasData {
		out.data = fn(r.data)
		out.hasData = !IsAbsent(out.data)
	}
	return out
}

// Cases holds one handler per variant for Match
type Cases[T, R any] struct {
	Loading func(data T, ok bool) R
	Success func(data T) R
	Error   func(message string, data T, ok bool, cause error) R
}

// Match dispatches r to the handler of its active variant. Every handler must be set.
func Match[T, R any](r Resource[T], c Cases[T, R]) R {
	switch r.state {
	case StateLoading:
		return c.Loading(r.data, r.hasData)
	case StateSuccess:
		return c.Success(r.data)
	case StateError:
		return c.Error(r.message, r.data, r.hasData, r.cause)
	default:
		panic(fmt.Sprintf("resource: unknown state %d", int(r.state)))
	}
}

// IsAbsent reports whether v represents "no data": a nil interface, or a nil
// pointer, map, slice, channel, function or interface value
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
