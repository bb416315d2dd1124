package fetch

import "errors"

// Error taxonomy for source wiki retrieval. Callers dispatch with
// errors.Is:
//
//   - ErrNotFound: the page does not exist upstream. Never retried;
//     the id is skipped and the scan continues.
//   - ErrRateLimited: upstream returned 429. Retried once like an
//     upstream error.
//   - ErrTimeout: the request exceeded its deadline. Retried once.
//   - ErrUpstream: any other transport or 5xx failure. Retried once.
var (
	ErrNotFound    = errors.New("page not found")
	ErrRateLimited = errors.New("rate limited by upstream")
	ErrTimeout     = errors.New("request timed out")
	ErrUpstream    = errors.New("upstream error")
)

// retryable reports whether a fetch error is worth one retry.
func retryable(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}
