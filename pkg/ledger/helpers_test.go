package ledger_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/canopy-network/liquidityx/pkg/ledger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(handler http.Handler) *ledger.HTTPClient {
	return newTestClientWithOpts(handler, ledger.Opts{})
}

func newTestClientWithOpts(handler http.Handler, opts ledger.Opts) *ledger.HTTPClient {
	httpClient := &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			resp := rec.Result()
			if resp.Body == nil {
				resp.Body = http.NoBody
			}
			return resp, nil
		}),
		Timeout: 5 * time.Second,
	}

	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = []string{"http://mock"}
	}
	opts.HTTPClient = httpClient

	return ledger.NewHTTPWithOpts(opts)
}
