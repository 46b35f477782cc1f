// Package validation holds the pure field validators of the request forms.
// Validators map a raw string value to an error message or nil; required-ness
// is an input, decided by the session's conditional state, never inspected
// from anywhere else.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evidenceworks/reqforms/internal/forms"
)

// OrgEmailDomain is the organizational email domain suffix all requesting
// officers must use.
const OrgEmailDomain = "@peelpolice.ca"

// Locker numbers are physical locker positions.
const (
	LockerMin = 1
	LockerMax = 28
)

var occurrencePattern = regexp.MustCompile(`^[Pp][Rr][0-9]+$`)

// FieldError represents a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []FieldError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *FieldError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []FieldError {
	return c.errors
}

// First returns the first accumulated error, or nil.
func (c *Collector) First() *FieldError {
	if len(c.errors) == 0 {
		return nil
	}
	return &c.errors[0]
}

// Context carries the non-field inputs some rules need.
type Context struct {
	// Now anchors the not-in-the-future check.
	Now time.Time
	// PairValue is the start field's raw value for end-after-start pairs.
	PairValue string
}

// Field validates a raw value against its descriptor. The required flag is
// the field's current effective required state, static or conditionally
// toggled. An empty optional value is always valid.
func Field(d forms.FieldDescriptor, raw string, required bool, vctx Context) *FieldError {
	if strings.TrimSpace(raw) == "" {
		if required {
			return &FieldError{Field: d.Name, Message: "this field is required"}
		}
		return nil
	}

	switch d.Rule {
	case forms.RuleEmail:
		return Email(d.Name, raw)
	case forms.RulePhone:
		return Phone(d.Name, raw)
	case forms.RuleOccurrence:
		return Occurrence(d.Name, raw)
	case forms.RuleLockerRange:
		return LockerNumber(d.Name, raw)
	case forms.RuleEndAfter:
		return EndAfter(d.Name, vctx.PairValue, raw)
	case forms.RuleNotFuture:
		return NotFuture(d.Name, raw, vctx.Now)
	}
	return nil
}

// Email returns an error unless the value ends with the organizational
// domain, case-insensitively.
func Email(field, value string) *FieldError {
	v := strings.ToLower(strings.TrimSpace(value))
	if !strings.HasSuffix(v, OrgEmailDomain) || len(v) <= len(OrgEmailDomain) {
		return &FieldError{Field: field, Message: "must be a valid organizational email"}
	}
	return nil
}

// Phone returns an error unless the value contains exactly 10 digits after
// stripping non-digit characters.
func Phone(field, value string) *FieldError {
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits != 10 {
		return &FieldError{Field: field, Message: "must be 10 digits"}
	}
	return nil
}

// Occurrence returns an error unless the value is a PR-prefixed occurrence
// number (case-insensitive PR followed by one or more digits).
func Occurrence(field, value string) *FieldError {
	if !occurrencePattern.MatchString(strings.TrimSpace(value)) {
		return &FieldError{Field: field, Message: "must start with PR followed by numbers"}
	}
	return nil
}

// LockerNumber returns an error unless the value is an integer within the
// physical locker range.
func LockerNumber(field, value string) *FieldError {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < LockerMin || n > LockerMax {
		return &FieldError{Field: field, Message: fmt.Sprintf("must be between %d and %d", LockerMin, LockerMax)}
	}
	return nil
}

// EndAfter returns an error unless end is strictly after start. The check
// only runs when both values are present and parseable; unparseable or
// missing counterparts are not this rule's concern.
func EndAfter(field, start, end string) *FieldError {
	s, err := forms.ParseDatetime(start)
	if err != nil {
		return nil
	}
	e, err := forms.ParseDatetime(end)
	if err != nil {
		return nil
	}
	if !e.After(s) {
		return &FieldError{Field: field, Message: "end time must be after start time"}
	}
	return nil
}

// NotFuture returns an error if the date value is after now. This rule fences
// the retention calculator: it never sees a future recorded date.
func NotFuture(field, value string, now time.Time) *FieldError {
	d, err := forms.ParseDate(value)
	if err != nil {
		return &FieldError{Field: field, Message: "must be a valid date"}
	}
	if d.After(now) {
		return &FieldError{Field: field, Message: "date must not be in the future"}
	}
	return nil
}
