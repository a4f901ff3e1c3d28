// Package probe fetches a URL from the web service once.
package probe

import (
	"github.com/kirinlabs/HttpRequest"

	ex "github.com/marsevilspirit/greeter/errors"
)

// DefaultURL is the web service endpoint the probe program reads.
const DefaultURL = "http://127.0.0.1:5000/hello/world"

// Fetch issues one GET to url and returns the body. Transport failures and
// non-2xx responses are errors. There are no retries.
func Fetch(url string) (string, error) {
	req := HttpRequest.NewRequest()
	res, err := req.Get(url)
	if err != nil {
		return "", ex.New(ex.ErrCodeServiceUnavailable, "probe: GET failed").
			WithDetail("url", url).
			WithCause(err)
	}

	body, err := res.Body()
	if err != nil {
		return "", ex.New(ex.ErrCodeServiceUnavailable, "probe: reading body").
			WithDetail("url", url).
			WithCause(err)
	}

	if code := res.StatusCode(); code < 200 || code > 299 {
		return "", ex.Newf(ex.ErrCodeServiceUnavailable, "probe: GET %s: unexpected status %d", url, code).
			WithDetail("status", code).
			WithDetail("body", string(body))
	}

	return string(body), nil
}
