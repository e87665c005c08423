package service

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Efasquel/tracker/internal"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

const invalidFieldsMsg = "Missing or invalid fields in the request"

func invalid(msg string) error {
	return internal.WrapError(internal.ErrValidation, msg)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid("Invalid id.")
	}
	return nil
}

// CoerceBool accepts a JSON boolean or the strings "true"/"false" in any case.
func CoerceBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, invalid(invalidFieldsMsg)
}

// CoerceScore accepts a positive whole number given as a JSON number or a numeric string.
func CoerceScore(v any) (int, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, invalid(invalidFieldsMsg)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, invalid(invalidFieldsMsg)
		}
		f = parsed
	default:
		return 0, invalid(invalidFieldsMsg)
	}
	if f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, invalid(invalidFieldsMsg)
	}
	return int(f), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Dates must fall within years 0000-9999, the range time.Time can encode
// as RFC 3339.
var (
	minMillis = time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxMillis = time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli()
)

func fromMillis(ms float64) (time.Time, bool) {
	if ms != math.Trunc(ms) || ms < float64(minMillis) || ms > float64(maxMillis) {
		return time.Time{}, false
	}
	return internal.TruncateToDate(time.UnixMilli(int64(ms))), true
}

// ParseTargetDate reads a date string in one of dateLayouts, or epoch
// milliseconds as a JSON number, and returns its UTC calendar date.
func ParseTargetDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case string:
		s := strings.TrimSpace(d)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				day := internal.TruncateToDate(t)
				if y := day.Year(); y >= 0 && y <= 9999 {
					return day, nil
				}
				break
			}
		}
	case float64:
		if day, ok := fromMillis(d); ok {
			return day, nil
		}
	case json.Number:
		if ms, err := d.Float64(); err == nil {
			if day, ok := fromMillis(ms); ok {
				return day, nil
			}
		}
	}
	return time.Time{}, invalid("Invalid targetCompletionAt.")
}
