// Package http provides the HTTP client used by the download manager.
//
// This package handles:
//   - HEAD requests to probe the size of a remote file
//   - GET requests that fetch a whole payload
//   - POST requests from the CLI to the daemon's control endpoint
//
// Requests are attempted once; there is no retry.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	// Probe the size, nil when the server does not report one
//	size, err := client.ProbeSize(ctx, url)
//
//	// Fetch the payload
//	data, err := client.Fetch(ctx, url)
package http
