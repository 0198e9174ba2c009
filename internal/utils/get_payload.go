package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"spokehub/internal/spoke"
)

// Accepted datetime layouts, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func GetStringPayload(payload map[string]any, key string) (string, error) {
	value, ok := payload[key]
	if !ok || value == nil {
		return "", spoke.Invalid("payload is missing required key: '%s'", key)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", spoke.Invalid("payload key '%s' has an invalid type (expected string)", key)
	}
	if strings.TrimSpace(strValue) == "" {
		return "", spoke.Invalid("payload key '%s' is empty", key)
	}
	return strValue, nil
}

// GetOptionalString returns def when key is absent or null.
func GetOptionalString(payload map[string]any, key, def string) (string, error) {
	value, ok := payload[key]
	if !ok || value == nil {
		return def, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", spoke.Invalid("payload key '%s' has an invalid type (expected string)", key)
	}
	return strValue, nil
}

func GetIntPayload(payload map[string]any, key string) (int, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, spoke.Invalid("payload is missing required key: '%s'", key)
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t < math.MinInt64 || t >= 1<<63 {
			return 0, spoke.Invalid("payload key '%s' is not a whole number: %v", key, t)
		}
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, spoke.Invalid("payload key '%s' invalid int: %v", key, err)
		}
		return i, nil
	default:
		return 0, spoke.Invalid("payload key '%s' has unsupported type %T", key, v)
	}
}

// GetOptionalInt returns def when key is absent or null.
func GetOptionalInt(payload map[string]any, key string, def int) (int, error) {
	if v, ok := payload[key]; !ok || v == nil {
		return def, nil
	}
	return GetIntPayload(payload, key)
}

// GetTimePayload parses key as a datetime. Values without a zone are read in loc.
func GetTimePayload(payload map[string]any, key string, loc *time.Location) (time.Time, error) {
	s, err := GetStringPayload(payload, key)
	if err != nil {
		return time.Time{}, err
	}
	return ParseTime(s, key, loc)
}

// GetOptionalTime returns the zero time when key is absent or null.
func GetOptionalTime(payload map[string]any, key string, loc *time.Location) (time.Time, bool, error) {
	if v, ok := payload[key]; !ok || v == nil {
		return time.Time{}, false, nil
	}
	switch t := payload[key].(type) {
	case float64:
		return time.Unix(int64(t), 0).In(loc), true, nil
	case int64:
		return time.Unix(t, 0).In(loc), true, nil
	case int:
		return time.Unix(int64(t), 0).In(loc), true, nil
	}
	tm, err := GetTimePayload(payload, key, loc)
	return tm, err == nil, err
}

func ParseTime(s, key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, spoke.Invalid("payload key '%s' is not a valid datetime: %q", key, s)
}

// GetStringSlicePayload accepts a JSON array of strings or a comma separated string.
func GetStringSlicePayload(payload map[string]any, key string) ([]string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, spoke.Invalid("payload key '%s' has a non-string item %T", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: payload key '%s' has unsupported type %T", spoke.ErrInvalidParameter, key, v)
	}
}
