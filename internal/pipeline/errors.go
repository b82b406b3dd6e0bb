package pipeline

import (
	"errors"
	"fmt"

	"github.com/jeovahfialho/stock-tracker/internal/domain"
)

// MalformedEventError marks a delivered event with missing or unexpected
// fields. Not retryable: redelivery would reproduce the same input.
type MalformedEventError struct {
	Key   domain.Key
	Field string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event for %s: missing %s", e.Key, e.Field)
}

// InvalidQuantityError guards the average/mean division: a zero quantity
// makes the result undefined and nothing is written. Not retryable.
type InvalidQuantityError struct {
	Stock string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity is zero for %s, price is undefined", e.Stock)
}

// StoreWriteError wraps a transient store or stream failure. Retryable:
// the handler propagates it so the delivery stays pending and is
// redelivered.
type StoreWriteError struct {
	Op  string
	Key domain.Key
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Retryable reports whether an error should leave the delivery pending
// for redelivery instead of being logged and dropped.
func Retryable(err error) bool {
	var swe *StoreWriteError
	return errors.As(err, &swe)
}
