// Package validation holds the heuristic filters applied to administrative
// free-text fields. The patterns catch the obvious cases only; every value
// that reaches the database from these fields is also bound as a query
// parameter, which is the control that actually prevents injection. The
// end-user SQL submission is never run through these checks.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Error is a field-level validation failure
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(field, format string, args ...interface{}) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`'\s*;`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?s)/\*.*?\*/`),
	regexp.MustCompile(`(?i);\s*(drop|delete|update|insert|create|alter|truncate|exec|execute)\b`),
	regexp.MustCompile(`(?is)\bunion\b.*\bselect\b`),
	regexp.MustCompile(`(?is)\bselect\b.*\bfrom\b`),
	regexp.MustCompile(`(?is)\binsert\b.*\binto\b`),
	regexp.MustCompile(`(?is)\bdelete\b.*\bfrom\b`),
	regexp.MustCompile(`(?is)\bupdate\b.*\bset\b`),
	regexp.MustCompile(`(?is)\bdrop\b.*\btable\b`),
	regexp.MustCompile(`(?is)\bcreate\b.*\btable\b`),
	regexp.MustCompile(`(?i)\bor\s+'?1'?\s*=\s*'?1'?`),
}

var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)&lt;script[^&]*&gt;`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|submit)\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)<object[^>]*>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
}

// NotBlank fails when value is empty or only whitespace
func NotBlank(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return newError(field, "%s cannot be blank", field)
	}
	return nil
}

// Length checks the rune count of value against [min, max]
func Length(value string, min, max int, field string) error {
	n := utf8.RuneCountInString(value)
	if n < min || n > max {
		return newError(field, "%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

// CheckInjection rejects values that look like SQL meta-syntax
func CheckInjection(value, field string) error {
	if value == "" {
		return nil
	}
	for _, p := range injectionPatterns {
		if p.MatchString(value) {
			return newError(field, "Invalid characters detected in %s. Please check your input.", field)
		}
	}
	return nil
}

// CheckMarkup rejects script, event handler and embed markup
func CheckMarkup(value, field string) error {
	if value == "" {
		return nil
	}
	for _, p := range markupPatterns {
		if p.MatchString(value) {
			return newError(field, "Invalid HTML/script tags detected in %s. Please check your input.", field)
		}
	}
	return nil
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize entity-escapes the five HTML-significant characters
func Sanitize(value string) string {
	return htmlEscaper.Replace(value)
}

// Rule describes the checks for one field, run in order: non-blank,
// length, injection, markup. The first failure is returned.
type Rule struct {
	Field     string
	Min       int
	Max       int
	Injection bool
	Markup    bool
}

func (r Rule) Check(value string) error {
	if err := NotBlank(value, r.Field); err != nil {
		return err
	}
	min := r.Min
	if min <= 0 {
		min = 1
	}
	if r.Max > 0 {
		if err := Length(value, min, r.Max, r.Field); err != nil {
			return err
		}
	}
	if r.Injection {
		if err := CheckInjection(value, r.Field); err != nil {
			return err
		}
	}
	if r.Markup {
		if err := CheckMarkup(value, r.Field); err != nil {
			return err
		}
	}
	return nil
}

// Field is Rule{...}.Check for the common case
func Field(value, field string, max int, injection bool) error {
	return Rule{Field: field, Max: max, Injection: injection, Markup: true}.Check(value)
}
