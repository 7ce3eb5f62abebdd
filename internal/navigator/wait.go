package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// TimeoutError is returned when a predicate never held within its timeout.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
	// LastErr is the last snapshot error seen while polling, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Description)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Predicate evaluates a DOM snapshot. Eval reports false while the
// condition does not hold yet.
type Predicate[T any] struct {
	Description string
	Eval        func(doc *goquery.Document) (T, bool)
}

// WaitFor polls fresh snapshots until p holds or timeout elapses. Snapshot
// errors, e.g. while the page is mid-navigation, count as "not yet".
func WaitFor[T any](ctx context.Context, n *Navigator, p Predicate[T], timeout time.Duration) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		doc, err := n.page.Document(ctx)
		if err == nil {
			if v, ok := p.Eval(doc); ok {
				return v, nil
			}
		} else {
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, &TimeoutError{Description: p.Description, Timeout: timeout, LastErr: lastErr}
		}
		if sleepErr := Sleep(ctx, min(n.poll, remaining)); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// WaitLocation polls the page location until match holds or timeout
// elapses. Read errors count as "not yet".
func WaitLocation(ctx context.Context, n *Navigator, description string, match func(string) bool, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		current, err := n.page.Location(ctx)
		if err == nil {
			if match(current) {
				return current, nil
			}
		} else {
			lastErr = err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &TimeoutError{Description: description, Timeout: timeout, LastErr: lastErr}
		}
		if sleepErr := Sleep(ctx, min(n.poll, remaining)); sleepErr != nil {
			return "", sleepErr
		}
	}
}

// PathSuffix matches a URL whose path, without query, fragment or trailing
// slash, ends with suffix.
func PathSuffix(suffix string) func(string) bool {
	return func(u string) bool {
		u, _, _ = strings.Cut(u, "#")
		u, _, _ = strings.Cut(u, "?")
		return strings.HasSuffix(strings.TrimSuffix(u, "/"), suffix)
	}
}

// Present holds once selector matches at least one element.
func Present(selector string) Predicate[*goquery.Selection] {
	return Predicate[*goquery.Selection]{
		Description: "presence of " + selector,
		Eval: func(doc *goquery.Document) (*goquery.Selection, bool) {
			sel := doc.Find(selector)
			return sel, sel.Length() > 0
		},
	}
}

// MinCount holds once selector matches at least n elements.
func MinCount(selector string, n int) Predicate[int] {
	return Predicate[int]{
		Description: fmt.Sprintf("at least %d of %s", n, selector),
		Eval: func(doc *goquery.Document) (int, bool) {
			count := doc.Find(selector).Length()
			return count, count >= n
		},
	}
}

// TextEquals holds once the first match of selector has trimmed text want.
func TextEquals(selector, want string) Predicate[string] {
	return Predicate[string]{
		Description: fmt.Sprintf("%s to read %q", selector, want),
		Eval: func(doc *goquery.Document) (string, bool) {
			text := strings.TrimSpace(doc.Find(selector).First().Text())
			return text, text == want
		},
	}
}

// AttrContains holds once some match of selector has attr containing substr,
// yielding that attribute value.
func AttrContains(selector, attr, substr string) Predicate[string] {
	return Predicate[string]{
		Description: fmt.Sprintf("%s with %s containing %q", selector, attr, substr),
		Eval: func(doc *goquery.Document) (string, bool) {
			var found string
			doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if v, ok := s.Attr(attr); ok && strings.Contains(v, substr) {
					found = v
					return false
				}
				return true
			})
			return found, found != ""
		},
	}
}
