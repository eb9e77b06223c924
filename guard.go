package statewatch

import "fmt"

// guard invokes user-supplied code, converting a panic into an error so
// failures at callback, reaction, predicate, and action boundaries can be
// logged without tearing down sibling work.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
