package query

import "time"

// Status is the lifecycle state of one query result.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the latest known outcome of one query key.
// A pending result is not an error.
type Result[T any] struct {
	Status    Status
	Data      T
	Err       error
	UpdatedAt time.Time
}

// Pending returns a result for a query that has not resolved yet.
func Pending[T any]() Result[T] {
	return Result[T]{Status: StatusPending, UpdatedAt: time.Now()}
}

// Success wraps resolved data.
func Success[T any](data T) Result[T] {
	return Result[T]{Status: StatusSuccess, Data: data, UpdatedAt: time.Now()}
}

// Failure wraps a read error.
func Failure[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err, UpdatedAt: time.Now()}
}

// From builds a result from a (value, error) pair.
func From[T any](data T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(data)
}

// Resolved reports whether the query succeeded.
func (r Result[T]) Resolved() bool {
	return r.Status == StatusSuccess
}
