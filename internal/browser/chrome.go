package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// Login form selectors.
const (
	usernameSelector = "#username"
	passwordSelector = "#password"
	submitSelector   = "#js-login-form-submit"
)

const loginPollInterval = 500 * time.Millisecond

// httpErrorStatus is the first status logged as a failed response.
const httpErrorStatus = 400

// ErrLoginFailed is returned when the login form does not lead away from the login page.
var ErrLoginFailed = errors.New("login failed")

// ChromePage implements Page on a chromedp tab.
type ChromePage struct {
	ctx context.Context
}

// run executes actions on the tab, also honouring the caller's ctx.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate implements Page.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location implements Page.
func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Document implements Page.
func (p *ChromePage) Document(ctx context.Context) (*goquery.Document, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

const clickScript = `(function(sel, idx) {
	const el = document.querySelectorAll(sel)[idx];
	if (!el) { return false; }
	el.scrollIntoView({block: "center"});
	el.click();
	return true;
})(%s, %d)`

// Click implements Page.
func (p *ChromePage) Click(ctx context.Context, selector string, index int) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, fmt.Errorf("encode selector: %w", err)
	}

	var clicked bool
	script := fmt.Sprintf(clickScript, quoted, index)
	if runErr := p.run(ctx, chromedp.Evaluate(script, &clicked)); runErr != nil {
		return false, fmt.Errorf("click %s[%d]: %w", selector, index, runErr)
	}
	return clicked, nil
}

// Cookies implements Page.
func (p *ChromePage) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(actx context.Context) error {
		var getErr error
		cookies, getErr = network.GetCookies().Do(actx)
		return getErr
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return convertCookies(cookies), nil
}

func convertCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// ChromeSessionProvider owns a Chrome process and a single tab.
type ChromeSessionProvider struct {
	page     *ChromePage
	platform config.PlatformConfig
	timeout  time.Duration
	log      logger.Logger
	cancel   context.CancelFunc
}

// NewChromeSessionProvider starts Chrome. Close releases it.
func NewChromeSessionProvider(
	ctx context.Context,
	browserCfg config.BrowserConfig,
	platform config.PlatformConfig,
	log logger.Logger,
) (*ChromeSessionProvider, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", !browserCfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if browserCfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(browserCfg.ExecPath))
	}
	if browserCfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(browserCfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Response.Status >= httpErrorStatus {
			log.Debug("Browser response error",
				logger.String("url", resp.Response.URL),
				logger.Int64("status", resp.Response.Status),
			)
		}
	})

	return &ChromeSessionProvider{
		page:     &ChromePage{ctx: tabCtx},
		platform: platform,
		timeout:  browserCfg.LoginTimeout,
		log:      log,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}, nil
}

// CurrentPage implements SessionProvider.
func (p *ChromeSessionProvider) CurrentPage() Page {
	return p.page
}

// Login fills the platform login form and waits until the browser leaves the login page.
func (p *ChromeSessionProvider) Login(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.log.Info("Logging in", logger.String("login_url", p.platform.LoginURL))

	err := p.page.run(ctx,
		chromedp.Navigate(p.platform.LoginURL),
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, p.platform.Username, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, p.platform.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: submit form: %w", ErrLoginFailed, err)
	}

	if waitErr := p.waitLeftLoginPage(ctx); waitErr != nil {
		return nil, waitErr
	}

	cookies, err := p.page.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	p.log.Info("Logged in", logger.Int("cookies", len(cookies)))
	return &Session{Cookies: cookies, AuthenticatedAt: time.Now()}, nil
}

func (p *ChromeSessionProvider) waitLeftLoginPage(ctx context.Context) error {
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()

	for {
		loc, err := p.page.Location(ctx)
		if err == nil && !strings.HasPrefix(loc, p.platform.LoginURL) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: still on login page: %w", ErrLoginFailed, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close stops the browser.
func (p *ChromeSessionProvider) Close() {
	p.cancel()
}
