package upstream

import (
	"net/http"
	"time"
)

// validators holds the revalidation state kept per fetched URL: the ETag
// and Last-Modified from the last successful response, plus the body
// they validate so a 304 can be answered without re-downloading.
type validators struct {
	etag         string
	lastModified time.Time
	body         []byte
}

// canRevalidate reports whether a conditional request is possible.
func (v *validators) canRevalidate() bool {
	if v == nil {
		return false
	}
	return v.etag != "" || !v.lastModified.IsZero()
}

// addConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since
// headers to the request. ETag is preferred when both are available.
func (v *validators) addConditionalHeaders(req *http.Request) {
	if v == nil || req == nil {
		return
	}
	if v.etag != "" {
		req.Header.Set("If-None-Match", v.etag)
	} else if !v.lastModified.IsZero() {
		req.Header.Set("If-Modified-Since", v.lastModified.Format(http.TimeFormat))
	}
}

// validatorsFromResponse extracts revalidation state from a successful
// response. Returns nil when the response carries no usable validators.
func validatorsFromResponse(resp *http.Response, body []byte) *validators {
	v := &validators{
		etag: resp.Header.Get("ETag"),
		body: body,
	}
	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			v.lastModified = lastMod
		}
	}
	if !v.canRevalidate() {
		return nil
	}
	return v
}
