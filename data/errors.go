package data

import (
	"errors"
	"sync"
)

// Standard storage errors that Provider implementations should use.
var (
	// Path resolution errors
	ErrInvalidPath = errors.New("unistore: invalid path detected")
	ErrNotFound    = errors.New("unistore: path not found")

	// Mount lifecycle errors
	ErrAlreadyMounted = errors.New("unistore: prefix already mounted")
	ErrNotMounted     = errors.New("unistore: prefix not mounted")
	ErrMountBusy      = errors.New("unistore: mount busy")
	ErrNoWritable     = errors.New("unistore: no writable provider mounted")
	ErrMountFailed    = errors.New("unistore: mount initialization failed")

	// Write errors
	ErrReadOnly = errors.New("unistore: read-only target")
	ErrExist    = errors.New("unistore: object already exists")

	// Materialization errors
	ErrInitialization = errors.New("unistore: type handler initialization failed")

	// Lifecycle errors
	ErrClosed = errors.New("unistore: storage already closed")
)

type Errors struct {
	mu     sync.RWMutex
	errors []error
}

func (e *Errors) Add(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = append(e.errors, err)
}

func (e *Errors) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.errors = make([]error, 0)
}

func (e *Errors) Errors() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.errors) == 0 {
		return nil
	}

	return errors.Join(e.errors...)
}
