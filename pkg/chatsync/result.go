package chatsync

import (
	"fmt"
)

// Result carries the outcome of one transport call: either a value or an error.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Err == nil }

// call runs fn and folds a panic into the error variant, so a misbehaving transport
// still yields exactly one outcome.
func call[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: fmt.Errorf("transport panic: %v", r)}
		}
	}()
	v, err := fn()
	return Result[T]{Value: v, Err: err}
}
