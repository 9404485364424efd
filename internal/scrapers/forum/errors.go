package forum

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidUser means neither the credentials nor the cookie produced a
	// logged in session.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidThread means a thread reference did not lead to a thread page.
	ErrInvalidThread = errors.New("invalid thread")
	// ErrExtraction means an expected element was missing from a page, usually
	// because the page layout changed or the request was rejected.
	ErrExtraction = errors.New("extraction failed")
	// ErrRetriesExhausted is only returned by a transport with a bounded RetryPolicy.
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrLoggedOut        = errors.New("session is logged out")
)

type InvalidUserError struct {
	Username string
}

func (e *InvalidUserError) Error() string {
	if e.Username == "" {
		return "forum: incorrect login details"
	}
	return fmt.Sprintf("forum: incorrect login details for '%s'", e.Username)
}

func (e *InvalidUserError) Unwrap() error {
	return ErrInvalidUser
}

type InvalidThreadError struct {
	Thread string
}

func (e *InvalidThreadError) Error() string {
	return fmt.Sprintf("forum: thread is invalid: '%s'", e.Thread)
}

func (e *InvalidThreadError) Unwrap() error {
	return ErrInvalidThread
}

type ExtractionError struct {
	// Page is the path of the page being read, it may be empty when the
	// document was handed in directly.
	Page  string
	Field string
}

func (e *ExtractionError) Error() string {
	if e.Page == "" {
		return fmt.Sprintf("forum: could not find '%s'", e.Field)
	}
	return fmt.Sprintf("forum: could not find '%s' on %s", e.Field, e.Page)
}

func (e *ExtractionError) Unwrap() error {
	return ErrExtraction
}

func missingField(field string) error {
	return &ExtractionError{Field: field}
}

// onPage attaches the page to an extraction error.
func onPage(page string, err error) error {
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) && extractErr.Page == "" {
		extractErr.Page = page
	}
	return err
}
