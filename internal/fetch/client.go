// Package fetch provides integration-specific clients for retrieving market
// data from contracts, subgraph indexers and partner REST APIs.
package fetch

import (
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// newRetryClient creates a new HTTP client with retry capabilities. Retries
// stay within the caller's context deadline, so a stage budget is never exceeded.
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 1 * time.Second
	c.Logger = nil
	return c
}

// setAuth attaches a bearer token when one is configured
func setAuth(req *http.Request, apiKey string) {
	if k := strings.TrimSpace(apiKey); k != "" {
		req.Header.Set("Authorization", "Bearer "+k)
	}
}

// parseScaled converts a base-10 integer string scaled by 10^decimals to a decimal
func parseScaled(raw string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return d.Shift(-decimals), nil
}
