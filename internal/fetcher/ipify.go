package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/http2"

	"github.com/MrSnakeDoc/ipwatch/internal/domain"
	"github.com/MrSnakeDoc/ipwatch/internal/telemetry"
)

const (
	// DefaultURL returns the caller's public IP as plain text.
	DefaultURL = "https://api.ipify.org"
	// DefaultTimeout bounds a single round-trip.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 256
)

// Options configures the public IP fetcher.
type Options struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client // optional, built from Timeout when nil
}

// PublicIP fetches the host's public IP from a plain-text echo service.
type PublicIP struct {
	url       string
	timeout   time.Duration
	userAgent string
	client    *http.Client
}

// New validates opts and builds a fetcher.
func New(opts Options) (*PublicIP, error) {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
		return nil, &domain.ConfigError{Field: "source url", Reason: "must be http(s)"}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Timeout < 0 {
		return nil, &domain.ConfigError{Field: "fetch timeout", Reason: "must be > 0"}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ipwatch"
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(opts.Timeout)
	}

	return &PublicIP{
		url:       opts.URL,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		client:    opts.Client,
	}, nil
}

// NewHTTPClient builds an instrumented HTTP/2-capable client with short timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          4,
	}
	// Falls back to HTTP/1.1 when the transport is already configured.
	_ = http2.ConfigureTransport(tr)

	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(tr),
	}
}

// URL returns the configured source.
func (f *PublicIP) URL() string { return f.url }

// Fetch performs one round-trip and returns the trimmed IP address.
// Failures are always *domain.FetchError.
func (f *PublicIP) Fetch(ctx context.Context) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "PublicIP.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("fetch.url", f.url))

	ip, err := f.fetch(ctx)
	if err != nil {
		fe := domain.AsFetchError(err)
		span.SetAttributes(attribute.String("fetch.error_kind", string(fe.Kind)))
		span.SetStatus(codes.Error, fe.Error())
		return "", fe
	}

	span.SetAttributes(attribute.String("fetch.value", ip))
	return ip, nil
}

func (f *PublicIP) fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return "", domain.NewFetchError(domain.ErrKindUnknown, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", domain.NewFetchError(classifyTransport(ctx, err), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return "", domain.NewFetchError(classifyTransport(ctx, err), fmt.Errorf("failed to read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.FetchError{
			Kind:   domain.ErrKindHTTPStatus,
			Status: resp.StatusCode,
			Err:    errors.New(snippet(body)),
		}
	}

	if len(body) > maxBodyBytes {
		return "", domain.NewFetchError(domain.ErrKindMalformed, fmt.Errorf("body exceeds %d bytes", maxBodyBytes))
	}

	return ParseIP(string(body))
}

// ParseIP validates a plain-text IP payload.
func ParseIP(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", domain.NewFetchError(domain.ErrKindMalformed, errors.New("empty body"))
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", domain.NewFetchError(domain.ErrKindMalformed, fmt.Errorf("not an ip address: %q", snippet([]byte(s))))
	}
	return addr.Unmap().String(), nil
}

func classifyTransport(ctx context.Context, err error) domain.ErrorKind {
	// The client wraps context errors in *url.Error; check the request context first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Classify(ctxErr)
	}
	return domain.Classify(err)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return s
}
