// Package browser drives the authenticated Chrome tab the scraper reads from.
package browser

import (
	"context"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a live browser tab. Implementations never hand out element
// handles: reads return a fresh snapshot of the DOM and clicks resolve
// their selector at call time.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Location returns the effective URL after redirects.
	Location(ctx context.Context) (string, error)
	// Document returns a snapshot of the current DOM.
	Document(ctx context.Context) (*goquery.Document, error)
	// Click scrolls the index-th element matching selector into view and
	// clicks it through script execution. It reports false when nothing matches.
	Click(ctx context.Context, selector string, index int) (bool, error)
	// Cookies returns the cookies visible to the current page.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
}

// Session is the result of a login. The authenticated page stays with the
// provider.
type Session struct {
	Cookies         []*http.Cookie
	AuthenticatedAt time.Time
}

// SessionProvider acquires authenticated sessions.
type SessionProvider interface {
	// Login authenticates and leaves the page where platform URLs are reachable.
	Login(ctx context.Context) (*Session, error)
	// CurrentPage returns the page owned by the provider.
	CurrentPage() Page
	// Close releases the browser behind the sessions.
	Close()
}
