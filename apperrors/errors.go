// Package apperrors classifies service errors so handlers can pick a status code.
package apperrors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneralError the service failed in an unexpected way, or is misconfigured
	CategoryGeneralError Category = iota
	// CategoryDataError the client sent input that is rejected as is, never retried
	CategoryDataError
	// CategoryResourceNotFound the client is asking for something that does not exist
	CategoryResourceNotFound
	// CategoryDataConflict the request conflicts with the current state of the resource
	CategoryDataConflict
	// CategoryTemporary a dependency is unavailable or has not caught up yet, retrying later may succeed
	CategoryTemporary
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDataConflict:
		return "CategoryDataConflict"
	case CategoryTemporary:
		return "CategoryTemporary"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries a message safe to show to the user and the underlying error for logs.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

func (err *ServiceError) Unwrap() error {
	return err.Err
}

func newError(cat Category, err error, message string) error {
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// BadRequest rejects client input, message is returned to the user.
func BadRequest(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

func NotFound(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

func Conflict(err error, message string) error {
	return newError(CategoryDataConflict, err, message)
}

// Temporary marks a failure after which the same request may succeed later.
func Temporary(err error, message string) error {
	return newError(CategoryTemporary, err, message)
}

// General hides err from the user behind a generic message.
func General(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

// CategoryOf returns the category of the outermost ServiceError in the chain.
func CategoryOf(err error) Category {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}
	return CategoryGeneralError
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	return err != nil && CategoryOf(err) == cat
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDataConflict:
		return http.StatusConflict
	case CategoryTemporary:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the text safe to return to the client.
func UserMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "Internal Server Error"
}
