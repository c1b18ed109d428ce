package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// DefaultAddr is the fixed local address of the control endpoint.
	DefaultAddr = "127.0.0.1:7878"

	// CommandPath is the only path the control endpoint accepts.
	CommandPath = "/command"
)

// ErrInvalidEnvelope is returned when a payload does not hold exactly one
// known command.
var ErrInvalidEnvelope = errors.New("protocol: invalid command envelope")

// Scope selects which queues a List command renders.
type Scope string

const (
	ScopeAll    Scope = "All"
	ScopeActive Scope = "Active"
	ScopeDone   Scope = "Done"
)

// ParseScope parses a scope name as typed on the command line.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "all", "All":
		return ScopeAll, nil
	case "active", "Active":
		return ScopeActive, nil
	case "done", "Done":
		return ScopeDone, nil
	default:
		return "", fmt.Errorf("unknown list scope %q", s)
	}
}

// Add queues a download.
type Add struct {
	URL                string  `json:"url"`
	CustomName         *string `json:"custom_name"`
	CustomDownloadPath *string `json:"custom_download_path"`
}

// List renders one or all queues.
type List struct {
	Scope Scope `json:"subcommands"`
}

// Cancel is accepted but has no effect.
type Cancel struct {
	Filename string `json:"filename"`
}

// Info looks up a single job by name.
type Info struct {
	Filename string `json:"filename"`
}

// Start bootstraps the daemon. It is executed locally by the CLI and never
// needs to travel over the wire.
type Start struct {
	ActiveDownloads int    `json:"active_downloads"`
	DownloadPath    string `json:"download_path"`
}

// Command is a tagged union: exactly one field is set.
//
// On the wire it is externally tagged by variant name:
//
//	{"Add":{"url":"http://host/a.zip","custom_name":null,"custom_download_path":null}}
type Command struct {
	Add    *Add    `json:"Add,omitempty"`
	List   *List   `json:"List,omitempty"`
	Cancel *Cancel `json:"Cancel,omitempty"`
	Info   *Info   `json:"Info,omitempty"`
	Start  *Start  `json:"Start,omitempty"`
}

// Kind returns the name of the variant that is set, or "" if none is.
func (c Command) Kind() string {
	switch {
	case c.Add != nil:
		return "Add"
	case c.List != nil:
		return "List"
	case c.Cancel != nil:
		return "Cancel"
	case c.Info != nil:
		return "Info"
	case c.Start != nil:
		return "Start"
	default:
		return ""
	}
}

func (c Command) count() int {
	n := 0
	for _, set := range []bool{c.Add != nil, c.List != nil, c.Cancel != nil, c.Info != nil, c.Start != nil} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks that exactly one variant is set and that its required
// fields are present.
func (c Command) Validate() error {
	if n := c.count(); n != 1 {
		return fmt.Errorf("%w: %d variants set", ErrInvalidEnvelope, n)
	}

	switch {
	case c.Add != nil && c.Add.URL == "":
		return fmt.Errorf("%w: Add without url", ErrInvalidEnvelope)
	case c.List != nil:
		switch c.List.Scope {
		case ScopeAll, ScopeActive, ScopeDone:
		default:
			return fmt.Errorf("%w: unknown list scope %q", ErrInvalidEnvelope, c.List.Scope)
		}
	}
	return nil
}

// Envelope is the JSON document a client POSTs to the control endpoint.
type Envelope struct {
	Command Command `json:"subcommands"`
}

// Marshal encodes cmd as an envelope.
func Marshal(cmd Command) ([]byte, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Command: cmd})
}

// Unmarshal decodes and validates an envelope. Variant and field names are
// matched exactly; fields that are not part of a command are ignored.
func Unmarshal(data []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var env object
	if err := dec.Decode(&env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if dec.More() {
		return Command{}, fmt.Errorf("%w: trailing data", ErrInvalidEnvelope)
	}

	var variants object
	if err := env.field("subcommands", &variants, true); err != nil {
		return Command{}, err
	}
	if len(variants) != 1 {
		return Command{}, fmt.Errorf("%w: %d variants set", ErrInvalidEnvelope, len(variants))
	}

	var cmd Command
	for name, raw := range variants {
		var body object
		if err := json.Unmarshal(raw, &body); err != nil {
			return Command{}, fmt.Errorf("%w: %s: %v", ErrInvalidEnvelope, name, err)
		}

		var err error
		switch name {
		case "Add":
			cmd.Add = &Add{}
			err = errors.Join(
				body.field("url", &cmd.Add.URL, true),
				body.field("custom_name", &cmd.Add.CustomName, false),
				body.field("custom_download_path", &cmd.Add.CustomDownloadPath, false),
			)
		case "List":
			cmd.List = &List{}
			err = body.field("subcommands", &cmd.List.Scope, true)
		case "Cancel":
			cmd.Cancel = &Cancel{}
			err = body.field("filename", &cmd.Cancel.Filename, true)
		case "Info":
			cmd.Info = &Info{}
			err = body.field("filename", &cmd.Info.Filename, true)
		case "Start":
			cmd.Start = &Start{}
			err = errors.Join(
				body.field("active_downloads", &cmd.Start.ActiveDownloads, true),
				body.field("download_path", &cmd.Start.DownloadPath, true),
			)
		default:
			return Command{}, fmt.Errorf("%w: unknown variant %q", ErrInvalidEnvelope, name)
		}
		if err != nil {
			return Command{}, err
		}
	}

	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// object is a JSON object whose members are looked up by exact name.
type object map[string]json.RawMessage

// field decodes the member key into dst. A missing or null member is an
// error only when required.
func (o object) field(key string, dst any, required bool) error {
	raw, ok := o[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if required {
			return fmt.Errorf("%w: missing field %q", ErrInvalidEnvelope, key)
		}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: field %q: %v", ErrInvalidEnvelope, key, err)
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
