// Package userfcn holds ordered, named callbacks attached to the stages of a
// dispatch routine. Each stage has a fixed payload type so callbacks can only
// see and return what that stage owns.
package userfcn

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/kilianp07/gridopt/core/errs"
)

// Func transforms a stage payload. Returning an error aborts the stage.
type Func[P any] func(P) (P, error)

type entry[P any] struct {
	name string
	fn   Func[P]
}

// Stage is an ordered list of callbacks sharing a payload type. The zero
// value is ready to use.
type Stage[P any] struct {
	Name string

	mu      sync.RWMutex
	entries []entry[P]
}

// NewStage returns an empty stage.
func NewStage[P any](name string) *Stage[P] {
	return &Stage[P]{Name: name}
}

// Option configures Add.
type Option func(*addOptions)

type addOptions struct {
	allowMultiple bool
}

// AllowMultiple lets a name be registered more than once on a stage.
func AllowMultiple() Option {
	return func(o *addOptions) { o.allowMultiple = true }
}

// Add appends fn under name. A second registration of the same name fails
// with a configuration error unless AllowMultiple is given.
func (s *Stage[P]) Add(name string, fn Func[P], opts ...Option) error {
	if fn == nil {
		return errs.Config(name, "nil callback on stage %s", s.Name)
	}
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !o.allowMultiple {
		for _, e := range s.entries {
			if e.name == name {
				return errs.Config(name, "callback already registered on stage %s", s.Name)
			}
		}
	}
	s.entries = append(s.entries, entry[P]{name: name, fn: fn})
	return nil
}

// Remove drops the most recently added callback registered under name.
func (s *Stage[P]) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].name == name {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return errs.Config(name, "no callback registered on stage %s", s.Name)
}

// Names returns the registered names in invocation order.
func (s *Stage[P]) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.name
	}
	return out
}

// Len returns the number of registered callbacks.
func (s *Stage[P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Run threads p through every callback in registration order. A callback
// that returns a nil pointer, map or interface without an error
// fails the stage.
func (s *Stage[P]) Run(p P) (P, error) {
	s.mu.RLock()
	entries := append([]entry[P](nil), s.entries...)
	s.mu.RUnlock()
	for _, e := range entries {
		out, err := e.fn(p)
		if err != nil {
			return p, fmt.Errorf("%s callback %s: %w", s.Name, e.name, err)
		}
		if isNil(out) {
			return p, errs.Config(e.name, "callback on stage %s returned no payload", s.Name)
		}
		p = out
	}
	return p, nil
}

func isNil[P any](p P) bool {
	v := reflect.ValueOf(&p).Elem()
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
