// Package control serves the daemon's local control endpoint.
//
// The endpoint speaks a minimal subset of HTTP/1.1 over TCP. Each
// connection carries one request. Requests are parsed with net/http, routed
// with chi and answered with a bare status line followed by a blank line
// and the body; no response headers are sent and the connection is closed
// afterwards.
//
// Only POST is accepted. Any other method gets 405 whatever the path, even
// when the rest of the request does not parse. A POST to any target other
// than protocol.CommandPath, query strings included, gets 404. Bodies that are
// empty or do not decode to a single command get 400. The body may be
// padded with NUL bytes.
//
// Decoded commands are handed to a Dispatcher. A Relay forwards them to the
// scheduler loop over channels:
//
//	commands := make(chan protocol.Command)
//	responses := make(chan []string)
//	go sched.Run(ctx, commands, responses)
//
//	srv := control.New(control.NewRelay(commands, responses), control.Options{})
//	ln, _ := net.Listen("tcp", protocol.DefaultAddr)
//	err := srv.Serve(ctx, ln)
package control
