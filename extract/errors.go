package extract

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/fieldpipe/constants"
)

// ConfigError is raised before any remote call when the request itself is invalid.
type ConfigError struct {
	Msg string
}

func (e ConfigError) Error() string {
	return e.Msg
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var c ConfigError
	return errors.As(err, &c)
}

// SearchError says which date field and page of a search failed.
type SearchError struct {
	DateField string
	Page      int
	Err       error
}

func (e SearchError) Error() string {
	field := e.DateField
	if field == "" {
		field = "(unconditional)"
	}
	return fmt.Sprintf("search by %v failed on page %v: %v", field, e.Page, e.Err)
}

func (e SearchError) Unwrap() error {
	return e.Err
}

// FetchError says which detail batch failed. Records from earlier batches are discarded.
type FetchError struct {
	Batch        int
	TotalBatches int
	Err          error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("detail fetch failed on batch %v of %v: %v", e.Batch, e.TotalBatches, e.Err)
}

func (e FetchError) Unwrap() error {
	return e.Err
}

// ValidateDateRange checks both dates are YYYY-MM-DD and start is not after end.
func ValidateDateRange(start, end string) error {
	s, err := time.Parse(constants.DateFormat, start)
	if err != nil {
		return ConfigError{Msg: fmt.Sprintf("invalid start date %q: expected YYYY-MM-DD", start)}
	}
	e, err := time.Parse(constants.DateFormat, end)
	if err != nil {
		return ConfigError{Msg: fmt.Sprintf("invalid end date %q: expected YYYY-MM-DD", end)}
	}
	if s.After(e) {
		return ConfigError{Msg: fmt.Sprintf("start date %v is after end date %v", start, end)}
	}
	return nil
}
