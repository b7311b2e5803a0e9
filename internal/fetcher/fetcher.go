package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

const (
	// DefaultTimeout bounds one fetch including every redirect hop.
	DefaultTimeout = 50 * time.Second

	// DefaultMaxBodyBytes is the content ceiling. Longer bodies are truncated.
	DefaultMaxBodyBytes int64 = 2 * 1024 * 1024

	// DefaultMaxRedirects is the number of redirect hops followed before the
	// fetch fails.
	DefaultMaxRedirects = 10

	// DefaultUserAgent identifies the crawler.
	DefaultUserAgent = "sitemapper/1.0 (+https://github.com/nao1215/sitemapper)"
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the limit.
var ErrTooManyRedirects = errors.New("too many redirects")

// Fetcher retrieves a single page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Result, error)
}

// Result is a fetched response.
type Result struct {
	// URL is the requested address.
	URL string

	// FinalURL is the address that answered after redirects.
	FinalURL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the Content-Type header, or a sniffed type when the
	// server sent none.
	ContentType string

	// Body holds at most MaxBodyBytes of decoded content. HTML bodies are
	// converted to UTF-8 from the declared or sniffed charset.
	Body []byte

	// Truncated is true when the body was cut at the ceiling.
	Truncated bool

	// Redirects lists the intermediate addresses, in order, excluding
	// URL and FinalURL.
	Redirects []string

	// Elapsed is the wall time of the fetch.
	Elapsed time.Duration
}

// IsHTML reports whether the content is an HTML document.
func (r *Result) IsHTML() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(strings.ToLower(r.ContentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// Redirected reports whether the response came from another address.
func (r *Result) Redirected() bool {
	return r.FinalURL != r.URL
}

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Cookie       string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRedirects int
	ProxyURL     string
	Logger       *slog.Logger
}

// HTTPFetcher implements Fetcher with net/http.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	cookie       string
	maxBodyBytes int64
	maxRedirects int
	logger       *slog.Logger
}

// NewHTTPFetcher constructs an HTTP fetcher using the provided options.
func NewHTTPFetcher(opts Options) (*HTTPFetcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		cookie:       opts.Cookie,
		maxBodyBytes: opts.MaxBodyBytes,
		maxRedirects: opts.MaxRedirects,
		logger:       opts.Logger,
	}, nil
}

// Fetch downloads rawURL, following redirects.
// Any HTTP status is a successful fetch; only transport failures, timeouts
// and broken redirect chains return an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.extraHeaders {
		req.Header.Set(k, v)
	}

	// Each fetch gets its own redirect policy so hops can be collected
	// without shared state.
	var hops []string
	client := *f.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) > f.maxRedirects {
			return fmt.Errorf("%w: stopped after %d hops", ErrTooManyRedirects, f.maxRedirects)
		}
		prev := via[len(via)-1].URL.String()
		f.logger.Debug("following redirect", "from", prev, "to", next.URL.String())
		if len(via) > 1 {
			hops = append(hops, prev)
		}
		return nil
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	body, truncated, err := f.readBody(resp)
	if err != nil {
		return nil, err
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" && len(body) > 0 {
		contentType = http.DetectContentType(body)
	}

	if truncated {
		f.logger.Debug("response body truncated", "url", finalURL, "limit", f.maxBodyBytes)
	}

	res := &Result{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Truncated:   truncated,
		Redirects:   hops,
		Elapsed:     time.Since(start),
	}
	if res.IsHTML() {
		res.Body = f.toUTF8(body, contentType, finalURL)
	}
	return res, nil
}

// toUTF8 converts an HTML body to UTF-8. The charset comes from the
// Content-Type parameter, a BOM or a <meta> declaration, in that order.
// Bodies that cannot be converted are returned unchanged.
func (f *HTTPFetcher) toUTF8(body []byte, contentType, pageURL string) []byte {
	if len(body) == 0 {
		return body
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		f.logger.Debug("charset decode failed", "url", pageURL, "charset", name, "error", err)
		return body
	}
	return decoded
}

// readBody decodes and reads at most maxBodyBytes of the response.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, bool, error) {
	if resp == nil || resp.Body == nil {
		return nil, false, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodyBytes+1))
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return body[:f.maxBodyBytes], true, nil
	}
	return body, false, nil
}
