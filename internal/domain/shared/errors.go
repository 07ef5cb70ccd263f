// Package shared holds the error kinds and value objects the domain packages
// have in common. It has no dependencies outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain sentinels carry one of these so callers can classify
// an error without knowing which package produced it.
var (
	ErrNotFound = errors.New("not found")

	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("empty value")
	ErrInvalidFormat = errors.New("invalid format")

	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// Backend kinds. Both are worth running again later.
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timeout")
)

// DomainError is a sentinel with an operation, a kind and an optional cause.
// Two DomainErrors match under errors.Is when domain, op and message agree,
// so a wrapped copy still matches the sentinel it came from.
type DomainError struct {
	Domain  string // "stats", "factsource"
	Op      string // "CommitDay", "EnsureReady"
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError declares a sentinel.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// Wrap returns a copy of the sentinel with err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	c := *e
	c.Err = err
	return &c
}

// IsNotFound reports an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsRetryable reports a backend that was down or slow, as opposed to a
// request that will fail the same way again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}
