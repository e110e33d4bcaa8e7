package tabledb

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Factory creates registries and closes them all on Close.
type Factory struct {
	opt Options

	mu         sync.Mutex
	registries []*Registry
	closed     bool
}

func NewFactory(opt Options) *Factory {
	return &Factory{opt: opt}
}

// Create opens a new Registry rooted at dir. Every call returns a distinct
// Registry, even for the same dir.
func (f *Factory) Create(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty directory path", ErrInvalid)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("%w: factory is closed", ErrIllegalState)
	}

	reg, err := OpenRegistry(dir, f.opt)
	if err != nil {
		return nil, err
	}
	f.registries = append(f.registries, reg)
	return reg, nil
}

// Close closes every Registry created by f. Closing twice is a no-op.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for _, reg := range f.registries {
		if err := reg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.registries = nil
	return errors.Join(errs...)
}
