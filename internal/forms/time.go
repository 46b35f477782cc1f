package forms

import "time"

// Wire layouts for date and datetime field values.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02T15:04"
)

// ParseDate parses a date field value.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ParseDatetime parses a datetime field value.
func ParseDatetime(s string) (time.Time, error) {
	return time.Parse(DatetimeLayout, s)
}
