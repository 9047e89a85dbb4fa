package domain

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

const (
	minNameLen = 2
	minAge     = 1
	maxAge     = 120
)

// ValidationError collects per-field problems of a request body.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (u UserCreate) Validate() error {
	var ve ValidationError
	if u.Name == "" {
		ve.add("name", "field required")
	} else {
		checkName(&ve, u.Name)
	}
	if u.Email == "" {
		ve.add("email", "field required")
	} else if !emailRegex.MatchString(u.Email) {
		ve.add("email", "value is not a valid email address")
	}
	checkAge(&ve, u.Age)
	return ve.orNil()
}

func (u UserUpdate) Validate() error {
	var ve ValidationError
	if u.Name != nil {
		checkName(&ve, *u.Name)
	}
	if u.Age != nil {
		checkAge(&ve, *u.Age)
	}
	return ve.orNil()
}

func checkName(ve *ValidationError, name string) {
	if utf8.RuneCountInString(name) < minNameLen {
		ve.add("name", "should have at least 2 characters")
	}
}

func checkAge(ve *ValidationError, age int) {
	if age < minAge || age > maxAge {
		ve.add("age", "should be between 1 and 120")
	}
}
