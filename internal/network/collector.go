// Package network turns raw request/response pairs reported by the
// instrumentation shims into filtered NetworkRecords and keeps the most
// recent of them in a bounded buffer.
package network

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
)

// DefaultMaxBodySize caps each serialized body independently
const DefaultMaxBodySize = 10 * 1024

// UnknownDomain is reported when a URL has no parsable host
const UnknownDomain = "unknown"

var internalPrefixes = []string{
	"chrome-extension://",
	"moz-extension://",
	"safari-extension://",
	"file://",
	"data:",
	"blob:",
	"about:",
}

var allowedHeaders = lo.Keyify([]string{
	"accept",
	"accept-encoding",
	"accept-language",
	"authorization",
	"cache-control",
	"content-encoding",
	"content-length",
	"content-type",
	"cookie",
	"etag",
	"location",
	"origin",
	"referer",
	"set-cookie",
	"user-agent",
	"x-api-key",
	"x-correlation-id",
	"x-request-id",
})

var sensitiveHeaderTerms = []string{"auth", "key", "token", "cookie", "secret"}

var staticAssetRe = regexp.MustCompile(`(?i)\.(js|mjs|css|png|jpe?g|gif|svg|ico|webp|avif|woff2?|ttf|otf|eot|map|mp4|webm|mp3)$`)

// Collector builds NetworkRecords. It is stateless apart from its settings
// and safe for concurrent use.
type Collector struct {
	engine      *redact.Engine
	clock       clock.Clock
	redactData  bool
	maxBodySize int
}

// Option configures a Collector
type Option func(*Collector)

// WithClock sets the clock used for records that arrive without a timestamp
func WithClock(c clock.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// WithRedaction toggles body and header value scrubbing
func WithRedaction(enabled bool) Option {
	return func(col *Collector) { col.redactData = enabled }
}

// WithMaxBodySize caps each serialized body
func WithMaxBodySize(n int) Option {
	return func(col *Collector) {
		if n > 0 {
			col.maxBodySize = n
		}
	}
}

// NewCollector creates a collector scrubbing with engine
func NewCollector(engine *redact.Engine, opts ...Option) *Collector {
	c := &Collector{
		engine:      engine,
		clock:       clock.New(),
		redactData:  true,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect converts one exchange. resp may be nil for calls still in flight.
func (c *Collector) Collect(req domain.RawRequest, resp *domain.RawResponse) domain.NetworkRecord {
	return c.CollectAt(req, resp, time.Time{})
}

// CollectAt is Collect with an explicit capture time, zero means now
func (c *Collector) CollectAt(req domain.RawRequest, resp *domain.RawResponse, at time.Time) domain.NetworkRecord {
	if at.IsZero() {
		at = c.clock.Now()
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = "GET"
	}

	rec := domain.NetworkRecord{
		ID:         uuid.NewString(),
		Method:     method,
		URL:        c.sanitizeURL(req.URL),
		Timestamp:  at,
		Domain:     Domain(req.URL),
		Category:   Categorize(method, req.URL),
		IsExternal: IsExternal(req.URL),
	}

	headers := make(map[string]string)
	c.mergeHeaders(headers, req.Headers)
	rec.RequestBody, rec.RequestTruncated = c.body(req.Body)

	if resp != nil {
		rec.Status = resp.Status
		rec.Duration = time.Duration(resp.Duration * float64(time.Millisecond))
		c.mergeHeaders(headers, resp.Headers)
		rec.ResponseBody, rec.ResponseTruncated = c.body(resp.Body)
	}
	if len(headers) > 0 {
		rec.Headers = headers
	}
	return rec
}

// FilterHeaders keeps allow-listed headers under their original names and
// masks any whose name carries credentials. Names match case-insensitively.
func FilterHeaders(in map[string]string) map[string]string {
	out := make(map[string]string)
	for name, value := range in {
		name = strings.TrimSpace(name)
		n := strings.ToLower(name)
		if _, ok := allowedHeaders[n]; !ok {
			continue
		}
		if SensitiveHeader(n) {
			out[name] = domain.RedactedMarker
			continue
		}
		out[name] = value
	}
	return out
}

// SensitiveHeader reports whether a header name carries credentials
func SensitiveHeader(name string) bool {
	n := strings.ToLower(name)
	for _, term := range sensitiveHeaderTerms {
		if strings.Contains(n, term) {
			return true
		}
	}
	return false
}

func (c *Collector) mergeHeaders(dst, src map[string]string) {
	for name, value := range FilterHeaders(src) {
		if c.redactData && value != domain.RedactedMarker {
			value = c.engine.ScrubString(value)
		}
		dst[name] = value
	}
}

// body scrubs a payload and caps its serialized size. Oversized bodies are
// replaced by their truncated serialization.
func (c *Collector) body(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if c.redactData {
		if str, ok := v.(string); ok {
			// string bodies are capped by maxBodySize below, not the value cap
			v = c.engine.ScrubString(str)
		} else {
			v = c.engine.RedactObject(v, 0)
		}
	}
	s, err := redact.Stringify(v)
	if err != nil || len(s) <= c.maxBodySize {
		return v, false
	}
	return redact.Truncate(s, c.maxBodySize), true
}

// sanitizeURL masks userinfo and sensitive query parameters, keeping the
// rest of the URL byte for byte.
func (c *Collector) sanitizeURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		raw = strings.Replace(raw, u.User.String()+"@", domain.RedactedMarker+"@", 1)
	}
	if !c.redactData {
		return raw
	}
	base, query, found := strings.Cut(raw, "?")
	if !found {
		return c.engine.ScrubString(raw)
	}
	fragment := ""
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query, fragment = query[:i], query[i:]
	}
	params := strings.Split(query, "&")
	for i, p := range params {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}
		if c.engine.Classify(name, decoded) {
			params[i] = name + "=" + domain.RedactedMarker
		}
	}
	return c.engine.ScrubString(base) + "?" + strings.Join(params, "&") + fragment
}

// Domain returns the URL's host without port, UnknownDomain when unparsable
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return UnknownDomain
	}
	return strings.ToLower(u.Hostname())
}

// IsExternal reports whether a URL leaves the machine. Browser-internal
// schemes and loopback hosts are never external.
func IsExternal(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range internalPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	host := Domain(raw)
	if host == UnknownDomain {
		return false
	}
	return !isLoopback(host)
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "0.0.0.0" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Categorize applies the category rules in order, first match wins
func Categorize(method, raw string) domain.NetworkCategory {
	method = strings.ToUpper(method)
	path := strings.ToLower(raw)
	host := ""
	if u, err := url.Parse(raw); err == nil {
		host = strings.ToLower(u.Hostname())
		if u.Path != "" {
			path = strings.ToLower(u.Path)
		}
	}

	switch {
	case strings.Contains(path, "/api/") || strings.HasPrefix(host, "api."):
		return domain.CategoryAPI
	case strings.Contains(path, "/graphql"):
		return domain.CategoryGraphQL
	case strings.Contains(path, "/auth") || strings.Contains(path, "/login"):
		return domain.CategoryAuthentication
	case method == "POST" && strings.Contains(path, "/upload"):
		return domain.CategoryFileUpload
	case method == "GET" && staticAssetRe.MatchString(path):
		return domain.CategoryStaticResource
	case strings.Contains(path, "/ws/") || strings.Contains(path, "/websocket"):
		return domain.CategoryWebSocket
	}
	return domain.CategoryGeneral
}
