package httpclient

import (
	"encoding/json"
	"net/http"
	"time"
)

// Request describes a single HTTP request.
type Request struct {
	// Method is the HTTP method. Defaults to GET.
	Method string

	// Path is appended to the client's BaseURL. It may also be an
	// absolute URL, in which case BaseURL is ignored.
	Path string

	// Query holds URL query parameters.
	Query map[string]string

	// Headers holds per-request headers, merged over the client defaults.
	Headers map[string]string

	// Body is the request body. Supported types: nil, []byte, string,
	// io.Reader, *MultipartBody, or any JSON-marshalable value.
	Body interface{}

	// Auth overrides the client's default authentication for this request.
	Auth *AuthConfig

	// Timeout overrides the client's default timeout for this request.
	Timeout time.Duration
}

// Response is the result of a completed HTTP request.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response headers.
	Headers http.Header

	// Body is the fully read response body.
	Body []byte

	// Elapsed is the wall-clock duration of the request, including retries.
	Elapsed time.Duration
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.Body)
}
