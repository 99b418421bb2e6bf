// Package httputil provides shared HTTP response helpers for handlers.
//
// JSON endpoints answer with the ErrorResponse envelope; the browser-facing
// confirm and unsubscribe routes answer with redirects or small HTML pages.
package httputil
