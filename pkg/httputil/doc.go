// Package httputil provides the HTTP plumbing used by remote template sources.
//
// # Overview
//
//   - [Client]: GET requests with default headers, JSON decoding, and a
//     byte cache in front of every response
//   - [Retry]: retry with exponential backoff for transient failures
//
// # Retry
//
// Only errors wrapped in [RetryableError] are retried. [Client] wraps
// network failures and 5xx responses; 4xx responses fail immediately.
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return client.GetJSON(ctx, url, &v)
//	})
//
// # Defaults
//
//   - Request timeout: 30 seconds
//   - Attempts: 3
//   - Base backoff: 1 second, doubling after each attempt
package httputil
