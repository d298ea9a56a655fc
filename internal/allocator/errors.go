package allocator

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	ErrInvalidLength    = errors.New("code length out of range")
	ErrInvalidBatchSize = errors.New("batch size out of range")
	ErrExhaustedRetries = errors.New("exhausted retries while allocating a unique code")
	ErrReservedAlias    = errors.New("custom alias is reserved")
	ErrAliasTaken       = errors.New("custom alias already exists")
)

// ExhaustedRetriesError reports how many candidates were tried before giving up.
type ExhaustedRetriesError struct {
	Attempts int
	Length   int
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("no unique code of length %d after %d attempts", e.Length, e.Attempts)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return ErrExhaustedRetries
}

// StoreError wraps a failure of the persistent store. It is never retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CacheError wraps a cache failure on an operation that cannot degrade, such
// as releasing a reservation on request.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// AliasTakenError is returned when a custom alias already exists. It carries
// alternatives that are likely free.
type AliasTakenError struct {
	Alias       string
	Suggestions []string
}

func (e *AliasTakenError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("custom alias %q already exists", e.Alias)
	}
	return fmt.Sprintf("custom alias %q already exists, try: %s", e.Alias, strings.Join(e.Suggestions, ", "))
}

func (e *AliasTakenError) Unwrap() error {
	return ErrAliasTaken
}
