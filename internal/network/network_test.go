package network

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
	"pgregory.net/rapid"
)

func newTestCollector(opts ...Option) (*Collector, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	opts = append([]Option{WithClock(mock)}, opts...)
	return NewCollector(redact.NewEngine(redact.SensitivityMedium), opts...), mock
}

func TestCollectAuthorizationHeaderIsMasked(t *testing.T) {
	c, _ := newTestCollector()

	rec := c.Collect(domain.RawRequest{
		Method: "POST",
		URL:    "https://api.example.com/users",
		Headers: map[string]string{
			"Authorization": "Bearer abc",
			"Content-Type":  "application/json",
			"X-Internal":    "dropped",
		},
	}, &domain.RawResponse{Status: 201, Duration: 12.5})

	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, domain.RedactedMarker, rec.Headers["Authorization"])
	assert.Equal(t, "application/json", rec.Headers["Content-Type"])
	assert.NotContains(t, rec.Headers, "X-Internal")
	assert.NotContains(t, rec.Headers, "authorization")
	assert.Equal(t, 12500*time.Microsecond, rec.Duration)
	assert.Equal(t, domain.CategoryAPI, rec.Category)
	assert.Equal(t, "api.example.com", rec.Domain)
	assert.True(t, rec.IsExternal)
	assert.NotEmpty(t, rec.ID)
}

func TestFilterHeadersMatchesNamesCaseInsensitively(t *testing.T) {
	got := FilterHeaders(map[string]string{
		"authorization": "Bearer a",
		"X-API-KEY":     "k",
		" User-Agent ":  "curl/8",
		"X-Forwarded":   "dropped",
	})

	assert.Equal(t, map[string]string{
		"authorization": domain.RedactedMarker,
		"X-API-KEY":     domain.RedactedMarker,
		"User-Agent":    "curl/8",
	}, got)
}

func TestCollectLocalhostIsNotExternal(t *testing.T) {
	c, _ := newTestCollector()
	rec := c.Collect(domain.RawRequest{Method: "GET", URL: "http://localhost:3000/api/health"}, nil)

	assert.False(t, rec.IsExternal)
	assert.Equal(t, "localhost", rec.Domain)
	assert.Zero(t, rec.Status)
	assert.False(t, rec.Failed())
}

func TestCollectUsesClockWhenTimestampMissing(t *testing.T) {
	c, mock := newTestCollector()
	rec := c.Collect(domain.RawRequest{URL: "https://example.com"}, nil)
	assert.Equal(t, mock.Now(), rec.Timestamp)

	at := mock.Now().Add(-time.Minute)
	rec = c.CollectAt(domain.RawRequest{URL: "https://example.com"}, nil, at)
	assert.Equal(t, at, rec.Timestamp)
}

func TestCollectRedactsBodies(t *testing.T) {
	c, _ := newTestCollector()

	rec := c.Collect(domain.RawRequest{
		Method: "POST",
		URL:    "https://example.com/login",
		Body:   map[string]any{"password": "hunter2", "name": "bob"},
	}, &domain.RawResponse{
		Status: 401,
		Body:   map[string]any{"error": "bad credentials for bob@example.com"},
	})

	req := rec.RequestBody.(map[string]any)
	assert.Equal(t, domain.RedactedMarker, req["password"])
	assert.Equal(t, "bob", req["name"])
	resp := rec.ResponseBody.(map[string]any)
	assert.Equal(t, domain.RedactedMarker, resp["error"])
	assert.True(t, rec.Failed())
	assert.Equal(t, domain.CategoryAuthentication, rec.Category)
}

func TestCollectRedactionDisabledKeepsBodies(t *testing.T) {
	c, _ := newTestCollector(WithRedaction(false))

	rec := c.Collect(domain.RawRequest{
		Method:  "POST",
		URL:     "https://example.com/items?token=abc",
		Headers: map[string]string{"Authorization": "Bearer x"},
		Body:    map[string]any{"password": "hunter2"},
	}, nil)

	assert.Equal(t, "hunter2", rec.RequestBody.(map[string]any)["password"])
	assert.Equal(t, "https://example.com/items?token=abc", rec.URL)
	// credential headers are masked whatever the toggle says
	assert.Equal(t, domain.RedactedMarker, rec.Headers["Authorization"])
}

func TestCollectCapsBodiesIndependently(t *testing.T) {
	c, _ := newTestCollector(WithMaxBodySize(100))
	long := strings.Repeat("a", 500)

	rec := c.Collect(domain.RawRequest{Method: "POST", URL: "https://example.com/x", Body: long},
		&domain.RawResponse{Status: 200, Body: "ok"})

	assert.True(t, rec.RequestTruncated)
	assert.False(t, rec.ResponseTruncated)
	s := rec.RequestBody.(string)
	assert.LessOrEqual(t, len(s), 100)
	assert.True(t, redact.IsTruncated(s))
	assert.Equal(t, "ok", rec.ResponseBody)
}

func TestCollectStringBodiesUseBodyCap(t *testing.T) {
	c, _ := newTestCollector()
	medium := strings.Repeat("b", 5000)
	large := strings.Repeat("c", 3*DefaultMaxBodySize)

	rec := c.Collect(domain.RawRequest{Method: "POST", URL: "https://example.com/x", Body: medium},
		&domain.RawResponse{Status: 200, Body: large})

	assert.False(t, rec.RequestTruncated)
	assert.Equal(t, medium, rec.RequestBody)
	assert.True(t, rec.ResponseTruncated)
	s := rec.ResponseBody.(string)
	assert.LessOrEqual(t, len(s), DefaultMaxBodySize)
	assert.Greater(t, len(s), 1000)
	assert.True(t, redact.IsTruncated(s))
}

func TestCollectScrubsStringBodies(t *testing.T) {
	c, _ := newTestCollector()

	rec := c.Collect(domain.RawRequest{Method: "POST", URL: "https://example.com/x", Body: "contact bob@example.com today"}, nil)

	assert.Equal(t, "contact [REDACTED] today", rec.RequestBody)
}

func TestCollectSanitizesURL(t *testing.T) {
	c, _ := newTestCollector()

	rec := c.Collect(domain.RawRequest{URL: "https://admin:pw@example.com/api/v1?token=abc&page=2#top"}, nil)

	assert.Equal(t, "https://[REDACTED]@example.com/api/v1?token=[REDACTED]&page=2#top", rec.URL)
	assert.Equal(t, "example.com", rec.Domain)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		method   string
		url      string
		expected domain.NetworkCategory
	}{
		{"GET", "https://x.com/api/users", domain.CategoryAPI},
		{"GET", "https://x.com/api/upload", domain.CategoryAPI},
		{"POST", "https://api.example.com/users", domain.CategoryAPI},
		{"GET", "https://API.example.com/", domain.CategoryAPI},
		{"GET", "https://rapid.example.com/users", domain.CategoryGeneral},
		{"POST", "https://x.com/graphql", domain.CategoryGraphQL},
		{"POST", "https://x.com/auth/token", domain.CategoryAuthentication},
		{"GET", "https://x.com/login", domain.CategoryAuthentication},
		{"POST", "https://x.com/upload/avatar", domain.CategoryFileUpload},
		{"PUT", "https://x.com/upload/avatar", domain.CategoryGeneral},
		{"GET", "https://cdn.x.com/static/app.js", domain.CategoryStaticResource},
		{"GET", "https://cdn.x.com/img/logo.PNG", domain.CategoryStaticResource},
		{"POST", "https://cdn.x.com/static/app.js", domain.CategoryGeneral},
		{"GET", "wss://x.com/ws/feed", domain.CategoryWebSocket},
		{"GET", "https://x.com/websocket", domain.CategoryWebSocket},
		{"GET", "https://x.com/", domain.CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, Categorize(tt.method, tt.url))
		})
	}
}

func TestDomainAndExternal(t *testing.T) {
	tests := []struct {
		url      string
		domain   string
		external bool
	}{
		{"https://Example.com:8443/x", "example.com", true},
		{"https://api.github.com/repos", "api.github.com", true},
		{"http://localhost:3000", "localhost", false},
		{"http://app.localhost/x", "app.localhost", false},
		{"http://127.0.0.1:8080/", "127.0.0.1", false},
		{"http://[::1]:8080/", "::1", false},
		{"chrome-extension://abcdef/popup.html", "abcdef", false},
		{"data:text/plain;base64,aGk=", UnknownDomain, false},
		{"blob:https://example.com/uuid", UnknownDomain, false},
		{"/relative/path", UnknownDomain, false},
		{"::not a url", UnknownDomain, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.domain, Domain(tt.url))
			assert.Equal(t, tt.external, IsExternal(tt.url))
		})
	}
}

func TestBufferKeepsNewestRecords(t *testing.T) {
	b := NewBuffer(DefaultCapacity)
	for i := 1; i <= 1005; i++ {
		b.Add(domain.NetworkRecord{ID: strconv.Itoa(i)})
	}

	all := b.All()
	require.Len(t, all, DefaultCapacity)
	assert.Equal(t, "6", all[0].ID)
	assert.Equal(t, "1005", all[len(all)-1].ID)
	assert.Equal(t, 5, b.Evicted())

	recent := b.Recent(2)
	assert.Equal(t, []string{"1004", "1005"}, []string{recent[0].ID, recent[1].ID})
}

func TestBufferFailedAndClear(t *testing.T) {
	b := NewBuffer(3)
	b.Add(domain.NetworkRecord{ID: "a", Status: 200})
	b.Add(domain.NetworkRecord{ID: "b", Status: 500})
	b.Add(domain.NetworkRecord{ID: "c", Status: 404})

	failed := b.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].ID)

	b.Clear()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.All())
}

func TestBufferRecordsAreCopies(t *testing.T) {
	b := NewBuffer(2)
	b.Add(domain.NetworkRecord{ID: "a", Headers: map[string]string{"accept": "x"}})

	got := b.All()
	got[0].Headers["accept"] = "mutated"
	assert.Equal(t, "x", b.All()[0].Headers["accept"])
}

func TestBufferNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		n := rapid.IntRange(0, 60).Draw(t, "n")
		b := NewBuffer(capacity)
		for i := 0; i < n; i++ {
			b.Add(domain.NetworkRecord{ID: strconv.Itoa(i)})
		}

		all := b.All()
		if len(all) != min(n, capacity) {
			t.Fatalf("len %d, want %d", len(all), min(n, capacity))
		}
		for i, r := range all {
			want := strconv.Itoa(n - len(all) + i)
			if r.ID != want {
				t.Fatalf("position %d holds %s, want %s", i, r.ID, want)
			}
		}
	})
}
