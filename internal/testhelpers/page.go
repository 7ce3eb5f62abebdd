// Package testhelpers provides an in-memory browser page for tests.
package testhelpers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ErrNavigation is returned by FakePage.Navigate for URLs listed in FailURLs.
var ErrNavigation = errors.New("navigation failed")

// ClickCall records one Click.
type ClickCall struct {
	Selector string
	Index    int
}

// FakePage is a scripted browser.Page. Navigation serves Routes, clicks call
// OnClick, and every Document call sees the HTML current at that moment.
type FakePage struct {
	mu sync.Mutex

	url  string
	html string

	// Routes maps a URL to the HTML served after navigating to it.
	Routes map[string]string
	// Redirects maps a requested URL to the effective URL reported afterwards.
	Redirects map[string]string
	// FailURLs lists URLs whose navigation returns ErrNavigation.
	FailURLs map[string]bool
	// OnNavigate runs after the route is applied.
	OnNavigate func(p *FakePage, url string)
	// OnClick runs after a successful click with the resolved selection.
	OnClick func(p *FakePage, selector string, index int, sel *goquery.Selection)
	// OnDocument runs before each snapshot with the 1-based call count.
	OnDocument func(p *FakePage, call int)

	CookieJar []*http.Cookie

	navigations []string
	clicks      []ClickCall
	documents   int
	pending     []pendingChange
}

type pendingChange struct {
	reads int
	apply func(p *FakePage)
}

// NewFakePage returns a page currently showing html at url.
func NewFakePage(url, html string) *FakePage {
	return &FakePage{
		url:       url,
		html:      html,
		Routes:    map[string]string{},
		Redirects: map[string]string{},
		FailURLs:  map[string]bool{},
	}
}

// SetHTML replaces the current DOM.
func (p *FakePage) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// SetURL replaces the current location.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// After runs apply once reads more Location or Document calls have been
// made, the way a navigation started by a click commits later. A
// non-positive reads applies it now.
func (p *FakePage) After(reads int, apply func(p *FakePage)) {
	if reads <= 0 {
		apply(p)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, pendingChange{reads: reads, apply: apply})
}

// read counts one Location or Document call and applies the changes it
// makes due.
func (p *FakePage) read() {
	p.mu.Lock()
	var due []func(p *FakePage)
	kept := p.pending[:0]
	for _, c := range p.pending {
		c.reads--
		if c.reads <= 0 {
			due = append(due, c.apply)
			continue
		}
		kept = append(kept, c)
	}
	p.pending = kept
	p.mu.Unlock()

	for _, apply := range due {
		apply(p)
	}
}

// Navigations returns every requested URL in order.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Clicks returns every successful click in order.
func (p *FakePage) Clicks() []ClickCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ClickCall(nil), p.clicks...)
}

// Navigate implements browser.Page.
func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	if p.FailURLs[url] {
		p.mu.Unlock()
		return ErrNavigation
	}
	effective := url
	if target, ok := p.Redirects[url]; ok {
		effective = target
	}
	p.url = effective
	if html, ok := p.Routes[effective]; ok {
		p.html = html
	}
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

// Location implements browser.Page.
func (p *FakePage) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.read()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

// Document implements browser.Page.
func (p *FakePage) Document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.documents++
	call := p.documents
	hook := p.OnDocument
	p.mu.Unlock()

	if hook != nil {
		hook(p, call)
	}
	p.read()

	return p.snapshot()
}

func (p *FakePage) snapshot() (*goquery.Document, error) {
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()

	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// Click implements browser.Page.
func (p *FakePage) Click(ctx context.Context, selector string, index int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	doc, err := p.snapshot()
	if err != nil {
		return false, err
	}

	matches := doc.Find(selector)
	if index < 0 || index >= matches.Length() {
		return false, nil
	}

	p.mu.Lock()
	p.clicks = append(p.clicks, ClickCall{Selector: selector, Index: index})
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, selector, index, matches.Eq(index))
	}
	return true, nil
}

// Cookies implements browser.Page.
func (p *FakePage) Cookies(context.Context) ([]*http.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*http.Cookie(nil), p.CookieJar...), nil
}
