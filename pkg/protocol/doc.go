// Package protocol defines the command envelope exchanged between the
// manager CLI and the running daemon.
//
// A client sends one HTTP/1.1 POST to CommandPath on DefaultAddr whose body
// is a JSON envelope holding exactly one command:
//
//	{"subcommands":{"Add":{"url":"http://host/a.zip","custom_name":null,"custom_download_path":null}}}
//	{"subcommands":{"List":{"subcommands":"All"}}}
//	{"subcommands":{"Info":{"filename":"a.zip"}}}
//	{"subcommands":{"Cancel":{"filename":"a.zip"}}}
//
// The daemon answers with a bare status line, a blank line and the
// concatenated result text. There are no response headers.
//
//	HTTP/1.1 200 OK
//
//	a.zip  ( _ / 1024)  Done
//
// Status codes: 200 on success, 405 for any method other than POST, 404 for
// any other path, 400 for a missing or malformed body.
package protocol
