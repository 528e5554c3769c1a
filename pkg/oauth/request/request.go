package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request is the normalized form of an incoming OAuth 2.0 request. The
// base HTTP parser assumes form encoding; token requests for the
// client_credentials grant arrive as JSON instead, so both shapes are
// reconstructed into one representation carrying method, URL with query
// string, body values, and headers.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	form url.Values
	json map[string]any
}

// New builds a normalized Request from an HTTP request, decoding a JSON
// body when the Content-Type says so and form data otherwise.
func New(r *http.Request) (*Request, error) {
	req := &Request{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header,
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		body := make(map[string]any)
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				return nil, fmt.Errorf("failed to decode JSON body: %w", err)
			}
		}
		req.json = body
		req.form = r.URL.Query()
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form data: %w", err)
	}
	req.form = r.Form
	return req, nil
}

// HasJSONBody reports whether the request carried a JSON body.
func (r *Request) HasJSONBody() bool {
	return r.json != nil
}

// JSONValue returns the named string field from the JSON body, or ""
// when absent or not a string.
func (r *Request) JSONValue(key string) string {
	if r.json == nil {
		return ""
	}
	if v, ok := r.json[key].(string); ok {
		return v
	}
	return ""
}

// FormValue returns the named field from the form body or query string.
func (r *Request) FormValue(key string) string {
	return r.form.Get(key)
}

// Value returns the named field from wherever the request carried it:
// the JSON body wins, then the form body, then the query string.
func (r *Request) Value(key string) string {
	if v := r.JSONValue(key); v != "" {
		return v
	}
	if v := r.form.Get(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

// BasicAuth returns HTTP Basic credentials from the Authorization
// header, if present.
func (r *Request) BasicAuth() (string, string, bool) {
	httpReq := http.Request{Header: r.Header}
	return httpReq.BasicAuth()
}
