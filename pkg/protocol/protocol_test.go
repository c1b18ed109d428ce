package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalMatchesWireFormat(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "add without options",
			cmd:  Command{Add: &Add{URL: "http://host/a.zip"}},
			want: `{"subcommands":{"Add":{"url":"http://host/a.zip","custom_name":null,"custom_download_path":null}}}`,
		},
		{
			name: "add with options",
			cmd:  Command{Add: &Add{URL: "http://host/a.zip", CustomName: StringPtr("b"), CustomDownloadPath: StringPtr("/tmp/d")}},
			want: `{"subcommands":{"Add":{"url":"http://host/a.zip","custom_name":"b","custom_download_path":"/tmp/d"}}}`,
		},
		{
			name: "list",
			cmd:  Command{List: &List{Scope: ScopeActive}},
			want: `{"subcommands":{"List":{"subcommands":"Active"}}}`,
		},
		{
			name: "info",
			cmd:  Command{Info: &Info{Filename: "a.zip"}},
			want: `{"subcommands":{"Info":{"filename":"a.zip"}}}`,
		},
		{
			name: "cancel",
			cmd:  Command{Cancel: &Cancel{Filename: "a.zip"}},
			want: `{"subcommands":{"Cancel":{"filename":"a.zip"}}}`,
		},
		{
			name: "start",
			cmd:  Command{Start: &Start{ActiveDownloads: 3, DownloadPath: "/tmp/d"}},
			want: `{"subcommands":{"Start":{"active_downloads":3,"download_path":"/tmp/d"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.cmd)
			require.NoError(t, err)
			require.JSONEq(t, tt.want, string(data))

			got, err := Unmarshal([]byte(tt.want))
			require.NoError(t, err)
			require.Equal(t, tt.cmd, got)
		})
	}
}

func TestUnmarshalRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `hello`},
		{"empty object", `{}`},
		{"no variant", `{"subcommands":{}}`},
		{"two variants", `{"subcommands":{"Info":{"filename":"a"},"Cancel":{"filename":"a"}}}`},
		{"unknown variant", `{"subcommands":{"Pause":{"filename":"a"}}}`},
		{"unknown scope", `{"subcommands":{"List":{"subcommands":"Failed"}}}`},
		{"add without url", `{"subcommands":{"Add":{"custom_name":"x"}}}`},
		{"trailing data", `{"subcommands":{"Info":{"filename":"a"}}} {}`},
		{"truncated", `{"subcommands":{"Info":`},
		{"lowercase variant", `{"subcommands":{"add":{"url":"http://host/a.zip"}}}`},
		{"capitalised envelope", `{"Subcommands":{"Info":{"filename":"a"}}}`},
		{"capitalised field", `{"subcommands":{"Info":{"Filename":"a"}}}`},
		{"null filename", `{"subcommands":{"Info":{"filename":null}}}`},
		{"wrong field type", `{"subcommands":{"Info":{"filename":7}}}`},
		{"variant not an object", `{"subcommands":{"Info":"a"}}`},
		{"start without path", `{"subcommands":{"Start":{"active_downloads":2}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.payload))
			require.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestUnmarshalIgnoresExtraFields(t *testing.T) {
	got, err := Unmarshal([]byte(`{"subcommands":{"Add":{"url":"http://host/a.zip","priority":1}},"version":2}`))
	require.NoError(t, err)
	require.Equal(t, Command{Add: &Add{URL: "http://host/a.zip"}}, got)

	got, err = Unmarshal([]byte(`{"subcommands":{"Start":{"active_downloads":2,"download_path":"/tmp","verbose":true}}}`))
	require.NoError(t, err)
	require.Equal(t, Command{Start: &Start{ActiveDownloads: 2, DownloadPath: "/tmp"}}, got)
}

func TestMarshalRejectsEmptyCommand(t *testing.T) {
	_, err := Marshal(Command{})
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestKind(t *testing.T) {
	require.Equal(t, "Add", Command{Add: &Add{}}.Kind())
	require.Equal(t, "List", Command{List: &List{}}.Kind())
	require.Equal(t, "Cancel", Command{Cancel: &Cancel{}}.Kind())
	require.Equal(t, "Info", Command{Info: &Info{}}.Kind())
	require.Equal(t, "Start", Command{Start: &Start{}}.Kind())
	require.Empty(t, Command{}.Kind())
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{"all": ScopeAll, "Active": ScopeActive, "done": ScopeDone} {
		got, err := ParseScope(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseScope("failed")
	require.Error(t, err)
}
