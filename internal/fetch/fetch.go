package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DefaultUserAgent is the fixed desktop browser identity sent on every
// request. Both the search frontend and article fetches use the same value.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultRedirectMaxHops caps redirect following; a hop beyond this is a
// hard error rather than a silently dropped response.
const DefaultRedirectMaxHops = 5

// Kind classifies a fetch failure into the categories callers branch on.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindDNSOrConnect     Kind = "dnsOrConnect"
	KindTooManyRedirects Kind = "tooManyRedirects"
	KindHTTPStatus       Kind = "httpStatus"
)

// Error is the typed failure returned by Client.Get. Status and Reason are
// populated only for KindHTTPStatus.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: status %d %s", e.URL, e.Status, e.Reason)
	case KindTooManyRedirects:
		return fmt.Sprintf("fetch %s: too many redirects", e.URL)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timeout", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

var errTooManyRedirects = errors.New("too many redirects")

// Client performs plain GET fetches with a fixed browser identity, identity
// transfer encoding, bounded redirects, and a single overall deadline that
// covers connect, all redirect hops, and the body read.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// RedirectMaxHops caps redirect following. Zero means default (5).
	RedirectMaxHops int
	// Timeout bounds the whole Get including redirects. Zero means 10s.
	Timeout time.Duration
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 10 * time.Second
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{
		Transport:     &http.Transport{DisableCompression: true, DisableKeepAlives: true},
		CheckRedirect: c.checkRedirectFunc(),
	}
}

// Get issues a GET and returns the body decoded to UTF-8. Failures are
// always a *Error so callers can branch on Kind.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindDNSOrConnect, URL: rawURL, Err: err}
	}
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return nil, &Error{Kind: KindDNSOrConnect, URL: rawURL, Err: fmt.Errorf("unsupported URL scheme: %q", rawURL)}
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Connection", "close")

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, c.classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindHTTPStatus,
			URL:    rawURL,
			Status: resp.StatusCode,
			Reason: http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(rawURL, err)
	}
	return DecodeToUTF8(body, resp.Header.Get("Content-Type")), nil
}

func (c *Client) classify(rawURL string, err error) *Error {
	if errors.Is(err, errTooManyRedirects) {
		return &Error{Kind: KindTooManyRedirects, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &Error{Kind: KindDNSOrConnect, URL: rawURL, Err: err}
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = DefaultRedirectMaxHops
	}
	return func(req *http.Request, via []*http.Request) error {
		// Following redirect N sees N entries in via; hop N is allowed up
		// to the cap and the next one is a hard error.
		if len(via) > max {
			return errTooManyRedirects
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// DecodeToUTF8 converts a body to UTF-8 using the charset parameter of the
// Content-Type header. Unknown or missing charsets return the body as-is.
func DecodeToUTF8(body []byte, contentType string) []byte {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	name := strings.ToLower(strings.TrimSpace(params["charset"]))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		return body
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}
