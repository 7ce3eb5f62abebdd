// Package extractor turns platform page fragments into domain entities.
// Every function is pure over a goquery selection: no navigation, no I/O.
package extractor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrMissingField is returned when a required element or attribute is absent.
	ErrMissingField = errors.New("missing field")
	// ErrEmptyTitle is returned when an entity title is blank.
	ErrEmptyTitle = errors.New("empty title")
	// ErrMalformedID is returned when a platform id cannot be parsed.
	ErrMalformedID = errors.New("malformed id")
	// ErrMalformedValue is returned when a percentage cannot be parsed.
	ErrMalformedValue = errors.New("malformed value")
)

// ExtractionError reports which field of which entity failed.
type ExtractionError struct {
	Entity string
	Field  string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s.%s: %v", e.Entity, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func fieldError(entity, field string, err error) error {
	return &ExtractionError{Entity: entity, Field: field, Err: err}
}

// scorePlaceholder is rendered instead of a score for ungraded items.
const scorePlaceholder = "-"

// ParsePercent converts percentage text such as "37%" into a ratio in [0,1].
// Empty text yields 0.
func ParsePercent(text string) (float64, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, nil
	}
	s = strings.Replace(s, ",", ".", 1)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedValue, text)
	}
	return math.Min(math.Max(v/100, 0), 1), nil
}

// ParseScore is ParsePercent with the placeholder dash mapped to 0.
func ParseScore(text string) (float64, error) {
	if strings.TrimSpace(text) == scorePlaceholder {
		return 0, nil
	}
	return ParsePercent(text)
}

// Slug normalises a title into an identifier fragment: lowercased, blanks and
// hyphens become underscores, hashes are dropped.
func Slug(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch r {
		case '#':
		case ' ', '\t', '\n', '-':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// titleOf prefers the title attribute over visible text.
func titleOf(sel *goquery.Selection) string {
	if v, ok := sel.Attr("title"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return text(sel)
}

// classWithPrefix returns the suffix of the first class starting with prefix,
// skipping any class listed in exclude.
func classWithPrefix(sel *goquery.Selection, prefix string, exclude ...string) (string, bool) {
	classes, _ := sel.Attr("class")
	for _, class := range strings.Fields(classes) {
		if !strings.HasPrefix(class, prefix) || containsString(exclude, class) {
			continue
		}
		if suffix := strings.TrimPrefix(class, prefix); suffix != "" {
			return suffix, true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
