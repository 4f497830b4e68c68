package blog

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDate is returned for post dates none of the accepted layouts parse.
var ErrInvalidDate = errors.New("invalid date")

// Layouts without a zone are read as UTC.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05Z07:00",
	time.RFC1123,
	time.RFC1123Z,
}

// pubDateLayout is RFC 1123 with the zone spelled GMT, as RSS readers expect.
const pubDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// DatePath holds the zero-padded UTC calendar fields used both for storage
// paths and permalinks.
type DatePath struct {
	Year  string
	Month string
	Day   string
}

func (d DatePath) String() string {
	return d.Year + "/" + d.Month + "/" + d.Day
}

// ParseDate parses a post date and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidDate)
}

// FormatDateForPath is the single routine deriving the year/month/day
// partition of a post.
func FormatDateForPath(s string) (DatePath, error) {
	t, err := ParseDate(s)
	if err != nil {
		return DatePath{}, err
	}
	return DatePath{
		Year:  fmt.Sprintf("%04d", t.Year()),
		Month: fmt.Sprintf("%02d", int(t.Month())),
		Day:   fmt.Sprintf("%02d", t.Day()),
	}, nil
}

// Permalink returns "{baseURL}/#/post/{year}/{month}/{day}/{id}".
func Permalink(baseURL, date, id string) (string, error) {
	d, err := FormatDateForPath(date)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(baseURL, "/") + "/#/post/" + d.String() + "/" + id, nil
}
