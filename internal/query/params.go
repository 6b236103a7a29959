package query

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var boolPattern = regexp.MustCompile(`(?i)^(?:1|0|true|false)$`)

// ParseBool accepts 1, 0, true and false in any case.
func ParseBool(s string) (bool, bool) {
	if !boolPattern.MatchString(s) {
		return false, false
	}
	switch strings.ToLower(s) {
	case "1", "true":
		return true, true
	}
	return false, true
}

// Flag is an optional boolean query parameter.
type Flag struct {
	Set   bool
	Value bool
}

// True reports whether the flag was given and set.
func (f Flag) True() bool { return f.Set && f.Value }

// False reports whether the flag was given and cleared.
func (f Flag) False() bool { return f.Set && !f.Value }

// Or returns the flag value, or def when the flag was not given.
func (f Flag) Or(def bool) bool {
	if f.Set {
		return f.Value
	}
	return def
}

// BoolParam reads name from params. ok is false when a value was given but
// is not a boolean.
func BoolParam(params url.Values, name string) (Flag, bool) {
	if _, present := params[name]; !present {
		return Flag{}, true
	}
	raw := params.Get(name)
	if raw == "" {
		return Flag{}, true
	}
	v, ok := ParseBool(raw)
	if !ok {
		return Flag{}, false
	}
	return Flag{Set: true, Value: v}, true
}

// IntParam reads a bounded non-negative integer of at most 7 digits.
func IntParam(params url.Values, name string) (int, bool, bool) {
	raw := params.Get(name)
	if raw == "" {
		return 0, false, true
	}
	if !skipLimitPattern.MatchString(raw) {
		return 0, true, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, false
	}
	return n, true, true
}
