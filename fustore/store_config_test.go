package fustore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadKeyValue(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{name: "text", input: `show_tile=T{1}`, want: map[string]string{"show_tile": "1"}},
		{
			name:  "comments and blanks",
			input: "\n# host switches\nshow_tile=T{0}\n\nconnect_to_pipe=T{1}\n",
			want:  map[string]string{"show_tile": "0", "connect_to_pipe": "1"},
		},
		{name: "multi-line text", input: "note=T{\na\nb\n}", want: map[string]string{"note": "a\nb"}},
		{name: "binary", input: `k=B{SGVsbG8=}`, want: map[string]string{"k": "Hello"}},
		{name: "binary multi-line", input: "k=B{\nSGVs\nbG8=\n}", want: map[string]string{"k": "Hello"}},
		{name: "empty text", input: `k=T{}`, want: map[string]string{"k": ""}},
		{name: "bad base64", input: `k=B{!!}`, wantErr: true},
		{name: "unterminated", input: "k=T{\nabc", wantErr: true},
		{name: "no equals ignored", input: "garbage\nk=T{v}", want: map[string]string{"k": "v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := readKeyValue(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(kv) != len(tt.want) {
				t.Fatalf("got %d keys, want %d: %v", len(kv), len(tt.want), kv)
			}
			for k, v := range tt.want {
				if string(kv[k]) != v {
					t.Fatalf("%s = %q, want %q", k, kv[k], v)
				}
			}
		})
	}
}

func TestWriteKeyValueRoundTrip(t *testing.T) {
	kv := keyValue{
		"plain":  []byte("on"),
		"lines":  []byte("a\nb"),
		"braces": []byte("{x}"),
		"blob":   bytes.Repeat([]byte{0, 1, 2, 0xff}, 40),
	}
	var buf bytes.Buffer
	if err := writeKeyValue(&buf, kv); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "plain=T{on}") {
		t.Fatalf("plain value not written as text:\n%s", buf.String())
	}
	got, err := readKeyValue(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range kv {
		if !bytes.Equal(got[k], v) {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestConfigDataStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "host.conf")
	s, err := NewConfigDataStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get("show_tile", false); err != nil || v != nil {
		t.Fatalf("Get on missing file = %q, %v", v, err)
	}

	if err := s.Set("show_tile", false, []byte("0")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("token", true, []byte("secret")); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatal("sealed value stored in plain text")
	}

	// An external edit is visible without reopening.
	if err := os.WriteFile(path, append(raw, []byte("connect_to_pipe=T{1}\n")...), 0600); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("connect_to_pipe", false); string(v) != "1" {
		t.Fatalf("connect_to_pipe = %q", v)
	}
	if v, _ := s.Get("show_tile", false); string(v) != "0" {
		t.Fatalf("show_tile = %q", v)
	}
	if v, err := s.Get("token", true); err != nil || string(v) != "secret" {
		t.Fatalf("token = %q, %v", v, err)
	}
	if s.Path() != path {
		t.Fatalf("Path = %q", s.Path())
	}
}
