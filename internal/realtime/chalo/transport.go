package chalo

import "net/http"

const userAgent = "transit-explorer/1.0"

type apiTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *apiTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	r := request.Clone(request.Context())
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		r.Header.Set("X-API-Key", t.apiKey)
	}
	return t.base.RoundTrip(r)
}

func newTransport(apiKey string) http.RoundTripper {
	return &apiTransport{apiKey: apiKey, base: http.DefaultTransport}
}
