package domain

import "time"

// NetworkCategory classifies a request by URL shape and method
type NetworkCategory string

const (
	CategoryAPI            NetworkCategory = "api"
	CategoryGraphQL        NetworkCategory = "graphql"
	CategoryAuthentication NetworkCategory = "authentication"
	CategoryFileUpload     NetworkCategory = "file_upload"
	CategoryStaticResource NetworkCategory = "static_resource"
	CategoryWebSocket      NetworkCategory = "websocket"
	CategoryGeneral        NetworkCategory = "general"
)

// RawRequest is a request as delivered by a network instrumentation shim
type RawRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// RawResponse is the response paired with a RawRequest. Duration is in milliseconds.
type RawResponse struct {
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     any               `json:"body,omitempty"`
	Duration float64           `json:"duration_ms,omitempty"`
}

// RawNetworkPair is one request/response exchange, response may be absent for in-flight calls
type RawNetworkPair struct {
	Request   RawRequest   `json:"request"`
	Response  *RawResponse `json:"response,omitempty"`
	Timestamp time.Time    `json:"timestamp,omitempty"`
}

// NetworkRecord is a normalized, filtered network exchange
type NetworkRecord struct {
	ID                string            `json:"id"`
	Method            string            `json:"method"`
	URL               string            `json:"url"`
	Headers           map[string]string `json:"headers,omitempty"`
	RequestBody       any               `json:"request_body,omitempty"`
	ResponseBody      any               `json:"response_body,omitempty"`
	Status            int               `json:"status"`
	Duration          time.Duration     `json:"duration"`
	Timestamp         time.Time         `json:"timestamp"`
	Domain            string            `json:"domain"`
	Category          NetworkCategory   `json:"category"`
	IsExternal        bool              `json:"is_external"`
	RequestTruncated  bool              `json:"request_truncated,omitempty"`
	ResponseTruncated bool              `json:"response_truncated,omitempty"`
}

// Failed reports whether the response status is an HTTP error
func (r NetworkRecord) Failed() bool {
	return r.Status >= 400
}

// Clone copies the header map; bodies are treated as immutable once collected.
func (r NetworkRecord) Clone() NetworkRecord {
	if r.Headers != nil {
		h := make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			h[k] = v
		}
		r.Headers = h
	}
	return r
}
