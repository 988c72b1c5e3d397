package player

import (
	"context"
	"fmt"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// offload runs a blocking engine call on its own goroutine so the caller
// can give up when ctx is done. The call itself cannot be interrupted and
// keeps running to completion in that case.
func offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return offloadAbandon(ctx, fn, nil)
}

// offloadAbandon is offload that hands the value of a call finishing
// after ctx ended to abandoned, so the caller can release it.
func offloadAbandon[T any](ctx context.Context, fn func() (T, error), abandoned func(T)) (T, error) {
	type result struct {
		value T
		err   error
	}

	resultChan := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				var zero T
				resultChan <- result{zero, libmpv.NewError(libmpv.KindCall, fmt.Sprintf("panic in engine call: %v", p))}
			}
		}()
		v, err := fn()
		resultChan <- result{v, err}
	}()

	select {
	case res := <-resultChan:
		return res.value, res.err
	case <-ctx.Done():
		if abandoned != nil {
			go func() {
				if res := <-resultChan; res.err == nil {
					abandoned(res.value)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}
