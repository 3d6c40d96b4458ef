// Package fetcher performs the single-shot HTTP retrievals the pipeline needs:
// the listing page and, per product, its image.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/shelfscrape/config"
	"github.com/use-agent/shelfscrape/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Page is the outcome of a successful page fetch.
type Page struct {
	// HTML is the response body decoded to UTF-8.
	HTML       string
	Title      string
	StatusCode int
	// FinalURL is the URL after redirects. Relative links on the page
	// resolve against it.
	FinalURL string
}

// Client issues GET requests with a Chrome-like TLS fingerprint.
// No request is ever retried.
type Client struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// New creates a Client from the fetch settings.
func New(cfg config.FetchConfig) *Client {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("fetcher: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
	}
}

// response is the raw outcome of get.
type response struct {
	body        []byte
	contentType string
	statusCode  int
	finalURL    string
}

// FetchPage retrieves address and returns its body as UTF-8 text.
//
// Failures are *models.ScrapeError values: ErrCodeTransport when the request
// cannot complete (DNS, connect, TLS, timeout) and ErrCodeHTTPStatus for a
// non-2xx response.
func (c *Client) FetchPage(ctx context.Context, address string, timeout time.Duration) (*Page, error) {
	resp, err := c.get(ctx, address, timeout, acceptHTML)
	if err != nil {
		return nil, err
	}

	text, err := decodeText(resp.body, resp.contentType)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "decode body charset", err)
	}

	return &Page{
		HTML:       text,
		Title:      extractTitle(text),
		StatusCode: resp.statusCode,
		FinalURL:   resp.finalURL,
	}, nil
}

// FetchBytes retrieves address and returns the raw body. It shares the
// failure taxonomy of FetchPage.
func (c *Client) FetchBytes(ctx context.Context, address string, timeout time.Duration, accept string) ([]byte, error) {
	resp, err := c.get(ctx, address, timeout, accept)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

func (c *Client) get(ctx context.Context, address string, timeout time.Duration, accept string) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer c.client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "build request", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, models.NewStatusError(resp.StatusCode, address)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeTransport, "read body", err)
	}

	return &response{
		body:        body,
		contentType: resp.Header.Get("Content-Type"),
		statusCode:  resp.StatusCode,
		finalURL:    resp.Request.URL.String(),
	}, nil
}

// decodeText converts body to UTF-8 using the declared or sniffed charset.
func decodeText(body []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
