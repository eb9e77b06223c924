package statewatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// validate is the shared validator instance.
var validate = validator.New()

// Format specifies the expected file data format.
type Format int

const (
	// FormatAuto detects format from content (default).
	FormatAuto Format = iota
	// FormatJSON expects JSON format.
	FormatJSON
	// FormatYAML expects YAML format.
	FormatYAML
)

// FileSource is a Source backed by a JSON or YAML file. The decoded value
// is cached; Read returns the cache, so reads never touch the filesystem.
//
// While open, file writes are re-read, decoded, and validated. A write
// that fails to decode or validate is logged and the previous good value
// is kept, so subscribers only ever observe valid values. Struct values
// are validated with go-playground/validator tags.
type FileSource[T any] struct {
	path   string
	format Format
	loop   *Loop
	logger *zap.Logger

	mu      sync.RWMutex
	current T

	subs    map[int]func()
	order   []int
	nextSub int

	watcher *fsnotify.Watcher
	done    chan struct{}
	opened  bool
}

// NewFileSource creates a FileSource for the given path. Call Open before
// registering it; a source with no loaded value has nothing to Read.
func NewFileSource[T any](loop *Loop, path string) *FileSource[T] {
	return &FileSource[T]{
		path:   path,
		loop:   loop,
		logger: zap.NewNop(),
		subs:   make(map[int]func()),
	}
}

// Format enforces the file data format. Default: auto-detect.
func (f *FileSource[T]) Format(format Format) *FileSource[T] {
	f.format = format
	return f
}

// Logger sets the logger used to report decode and watch failures.
func (f *FileSource[T]) Logger(logger *zap.Logger) *FileSource[T] {
	f.logger = logger
	return f
}

// Open loads and validates the initial value and begins watching the file
// for writes. It fails if the file cannot be read, decoded, or validated.
// Open can only be called once.
func (f *FileSource[T]) Open() error {
	if f.opened {
		return fmt.Errorf("file source already open")
	}

	initial, err := f.load()
	if err != nil {
		return err
	}
	f.current = initial

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(f.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file %s: %w", f.path, err)
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	f.opened = true
	go f.watch()

	return nil
}

// Close stops watching the file. The cached value remains readable.
// Idempotent.
func (f *FileSource[T]) Close() {
	if f.watcher == nil {
		return
	}
	f.watcher.Close()
	<-f.done
	f.watcher = nil
}

// Get returns the cached value.
func (f *FileSource[T]) Get() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Read implements Source.
func (f *FileSource[T]) Read() any {
	return f.Get()
}

// Subscribe implements Source. Must be called on the loop goroutine.
func (f *FileSource[T]) Subscribe(notify func()) func() {
	key := f.nextSub
	f.nextSub++
	f.subs[key] = notify
	f.order = append(f.order, key)

	return func() {
		if _, ok := f.subs[key]; !ok {
			return
		}
		delete(f.subs, key)
		for i, k := range f.order {
			if k == key {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
}

// load reads, decodes, and validates the file.
func (f *FileSource[T]) load() (T, error) {
	var value T

	data, err := os.ReadFile(f.path)
	if err != nil {
		return value, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := decode(data, &value, f.format); err != nil {
		return value, fmt.Errorf("failed to decode %s: %w", f.path, err)
	}

	// Validator tags only apply to struct values.
	if kind(value) == reflect.Struct {
		if err := validate.Struct(value); err != nil {
			return value, fmt.Errorf("validation failed for %s: %w", f.path, err)
		}
	}
	return value, nil
}

// watch reloads on file writes, notifying subscribers through the loop.
// Each successful reload is its own coalescing burst.
func (f *FileSource[T]) watch() {
	defer close(f.done)

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			value, err := f.load()
			if err != nil {
				f.logger.Error("file source reload failed, keeping previous value",
					zap.String("path", f.path),
					zap.Error(err),
				)
				continue
			}

			f.mu.Lock()
			f.current = value
			f.mu.Unlock()

			f.loop.Post(f.notifyAll)

		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching despite transient errors.
		}
	}
}

// notifyAll runs on the loop.
func (f *FileSource[T]) notifyAll() {
	for _, key := range f.order {
		if notify, ok := f.subs[key]; ok {
			notify()
		}
	}
}

// kind returns the reflect kind of v, unwrapping pointers.
func kind(v any) reflect.Kind {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return reflect.Invalid
	}
	return t.Kind()
}

// decode parses data according to the specified format. FormatAuto detects
// JSON by its leading character and otherwise parses as YAML, which accepts
// plain JSON as well.
func decode(data []byte, v any, format Format) error {
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("expected JSON: %w", err)
		}
		return nil

	case FormatYAML:
		return yaml.Unmarshal(data, v)

	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return json.Unmarshal(data, v)
		}
		return yaml.Unmarshal(data, v)
	}
}
