package llms

import (
	"fmt"
	"net/http"

	"github.com/medscout/rxsearch/pkg/httpclient"
	"github.com/medscout/rxsearch/pkg/rxerr"
)

// classifyStatus maps a provider HTTP status to an error kind.
// 429 after retries is Throttled; 4xx is the caller's fault; anything
// else is the provider's.
func classifyStatus(statusCode int, provider string, body []byte) error {
	msg := fmt.Sprintf("%s API returned status %d: %s", provider, statusCode, truncateBody(body))
	switch {
	case statusCode == http.StatusTooManyRequests:
		return rxerr.New(rxerr.KindThrottled, msg)
	case statusCode >= 400 && statusCode < 500:
		return rxerr.New(rxerr.KindInvalidInput, msg)
	default:
		return rxerr.New(rxerr.KindUpstreamUnavailable, msg)
	}
}

// classifyHTTPError maps transport-level failures (including exhausted
// retries) to an error kind.
func classifyHTTPError(err error, provider string) error {
	if httpclient.IsThrottled(err) {
		return rxerr.Wrap(rxerr.KindThrottled, provider+" rate limit exhausted after retries", err)
	}
	return rxerr.Wrap(rxerr.KindUpstreamUnavailable, provider+" request failed", err)
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
