package statewatch

import "sync"

// Source is an external single-value container. Read returns the current
// value and must be side-effect free from this package's perspective.
// Subscribe registers a change notification and returns an unsubscribe
// function; notifications carry no payload, so receivers re-read the value.
//
// A broken source is not a recoverable condition: Read and Subscribe are
// expected to panic rather than fail silently, and this package does not
// catch those panics.
type Source interface {
	Read() any
	Subscribe(notify func()) (unsubscribe func())
}

// Value is an in-memory settable Source. It is loop-affine: Set and
// Subscribe must run on the loop goroutine (mutate from outside via
// Loop.Post, Loop.Do, or Update), which is what groups several Set calls
// into one coalescing burst. Get and Read are safe from any goroutine.
type Value[T any] struct {
	loop *Loop

	mu    sync.RWMutex
	value T

	// Subscription bookkeeping is owned by the loop goroutine.
	subs    map[int]func()
	order   []int
	nextSub int
}

// NewValue creates a Value holding initial.
func NewValue[T any](loop *Loop, initial T) *Value[T] {
	return &Value[T]{
		loop:  loop,
		value: initial,
		subs:  make(map[int]func()),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set stores next and synchronously notifies subscribers within the
// current turn. Must be called on the loop goroutine.
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	v.value = next
	v.mu.Unlock()

	for _, key := range v.order {
		if notify, ok := v.subs[key]; ok {
			notify()
		}
	}
}

// Update posts a Set of next onto the loop as its own turn and returns
// without waiting. Safe from any goroutine.
func (v *Value[T]) Update(next T) {
	v.loop.Post(func() {
		v.Set(next)
	})
}

// Read implements Source.
func (v *Value[T]) Read() any {
	return v.Get()
}

// Subscribe implements Source. Must be called on the loop goroutine.
func (v *Value[T]) Subscribe(notify func()) func() {
	key := v.nextSub
	v.nextSub++
	v.subs[key] = notify
	v.order = append(v.order, key)

	return func() {
		if _, ok := v.subs[key]; !ok {
			return
		}
		delete(v.subs, key)
		for i, k := range v.order {
			if k == key {
				v.order = append(v.order[:i], v.order[i+1:]...)
				break
			}
		}
	}
}
