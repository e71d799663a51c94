package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func TestGet_SendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := &Client{}
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("get: %v", err)
	}
	if ua := got.Get("User-Agent"); !strings.Contains(ua, "Mozilla/5.0") {
		t.Fatalf("unexpected user agent: %q", ua)
	}
	if enc := got.Get("Accept-Encoding"); enc != "identity" {
		t.Fatalf("expected identity encoding, got %q", enc)
	}
	if lang := got.Get("Accept-Language"); lang != "en-US,en;q=0.9" {
		t.Fatalf("unexpected accept-language: %q", lang)
	}
}

func TestGet_StatusErrorCarriesCodeAndReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.Get(context.Background(), srv.URL)
	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Kind != KindHTTPStatus || fe.Status != 404 || fe.Reason == "" {
		t.Fatalf("unexpected error: %+v", fe)
	}
}

func TestGet_FollowsUpToFiveRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/final":
			_, _ = w.Write([]byte("done"))
		default:
			// /0 -> /1 -> ... -> /4 -> /final is exactly five hops
			var n int
			_, _ = fmt.Sscanf(r.URL.Path, "/%d", &n)
			next := fmt.Sprintf("/%d", n+1)
			if n >= 4 {
				next = "/final"
			}
			http.Redirect(w, r, srv.URL+next, http.StatusFound)
		}
	}))
	defer srv.Close()

	c := &Client{}
	body, err := c.Get(context.Background(), srv.URL+"/0")
	if err != nil {
		t.Fatalf("five redirects should succeed: %v", err)
	}
	if string(body) != "done" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestGet_SixthRedirectFails(t *testing.T) {
	var srv *httptest.Server
	hops := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, srv.URL+fmt.Sprintf("/%d", hops), http.StatusFound)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.Get(context.Background(), srv.URL)
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindTooManyRedirects {
		t.Fatalf("expected tooManyRedirects, got %v", err)
	}
}

func TestGet_TimeoutKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := &Client{Timeout: 50 * time.Millisecond}
	_, err := c.Get(context.Background(), srv.URL)
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindTimeout {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}

func TestGet_RejectsNonHTTPScheme(t *testing.T) {
	c := &Client{}
	_, err := c.Get(context.Background(), "ftp://example.com/file")
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindDNSOrConnect {
		t.Fatalf("expected scheme rejection, got %v", err)
	}
}

func TestDecodeToUTF8_Latin1(t *testing.T) {
	raw, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte("café"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := DecodeToUTF8(raw, "text/html; charset=iso-8859-1")
	if string(got) != "café" {
		t.Fatalf("decode mismatch: %q", got)
	}
}

func TestDecodeToUTF8_PassThrough(t *testing.T) {
	body := []byte("plain utf-8 ✓")
	if got := DecodeToUTF8(body, "text/html; charset=utf-8"); string(got) != string(body) {
		t.Fatalf("utf-8 body must pass through unchanged")
	}
	if got := DecodeToUTF8(body, ""); string(got) != string(body) {
		t.Fatalf("missing content type must pass through unchanged")
	}
}
