package forecast

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMalformedDate   = errors.New("malformed date")
	ErrDateNotInFuture = errors.New("date is not in the future")
)

// DateLayout is the only accepted input format.
const DateLayout = "2006-01-02"

// DateStatus is the outcome of validating a requested date.
type DateStatus int

const (
	DateValid DateStatus = iota
	DateMalformed
	DateNotInFuture
)

func (s DateStatus) String() string {
	switch s {
	case DateValid:
		return "valid"
	case DateMalformed:
		return "malformed"
	case DateNotInFuture:
		return "not_in_future"
	default:
		return "unknown"
	}
}

// DateCheck is the validated result for a user supplied date. Malformed input
// and a well-formed date that fails the future rule are distinct statuses.
type DateCheck struct {
	Input  string
	Date   time.Time // midnight UTC, zero when malformed
	Status DateStatus
}

func (c DateCheck) Valid() bool { return c.Status == DateValid }

// Err maps the status to ErrMalformedDate or ErrDateNotInFuture, nil when valid.
func (c DateCheck) Err() error {
	switch c.Status {
	case DateValid:
		return nil
	case DateMalformed:
		return ErrMalformedDate
	default:
		return ErrDateNotInFuture
	}
}

// ValidateDate checks that input is a YYYY-MM-DD date strictly after the
// calendar day of today.
func ValidateDate(input string, today time.Time) DateCheck {
	check := DateCheck{Input: input}

	d, err := time.Parse(DateLayout, strings.TrimSpace(input))
	if err != nil {
		check.Status = DateMalformed
		return check
	}
	check.Date = d

	y, m, day := today.Date()
	if !d.After(time.Date(y, m, day, 0, 0, 0, 0, time.UTC)) {
		check.Status = DateNotInFuture
		return check
	}

	check.Status = DateValid
	return check
}
