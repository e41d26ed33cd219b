package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_Missing(t *testing.T) {
	data, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil || data != nil {
		t.Errorf("LoadFile(missing) = %v, %v; want nil, nil", data, err)
	}
}

func TestLoadFile_Formats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"a.toml", "[server]\nport = 1234\n"},
		{"b.yaml", "server:\n  port: 1234\n"},
		{"c.yml", "server: {port: 1234}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			data, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			v, ok := getPath(data, "server.port")
			if !ok {
				t.Fatalf("server.port missing in %v", data)
			}
			if n, err := toInt("server.port", v); err != nil || n != 1234 {
				t.Errorf("server.port = %v (%T)", v, v)
			}
		})
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[server\nport = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(bad)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("LoadFile(bad toml) = %v, want ParseError", err)
	}
	if pe.Path != bad || pe.Line < 1 {
		t.Errorf("ParseError = %+v, want a line number", pe)
	}

	badYAML := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(badYAML, []byte("server: [1, 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(badYAML); !errors.As(err, &pe) {
		t.Errorf("LoadFile(bad yaml) = %v, want ParseError", err)
	}

	ini := filepath.Join(dir, "conf.ini")
	if err := os.WriteFile(ini, []byte("port=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(ini); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("LoadFile(ini) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadEnv(t *testing.T) {
	data := LoadEnv([]string{
		"DEPURADOR_SERVER_MAX_LINE_BYTES=2048",
		"DEPURADOR_ENGINE_STOP_ON_ENTRY=false",
		"DEPURADOR_PORT=8000",
		"DEPURADOR_SERVER_HOST=localhost",
		"DEPURADOR_ORPHAN=1",
		"PATH=/bin",
	})

	tests := []struct {
		path string
		want any
	}{
		{"server.max_line_bytes", int64(2048)},
		{"engine.stop_on_entry", false},
		{"server.port", int64(8000)},
		{"server.host", "localhost"},
	}
	for _, tt := range tests {
		got, ok := getPath(data, tt.path)
		if !ok {
			t.Errorf("%s missing", tt.path)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %v (%T), want %v (%T)", tt.path, got, got, tt.want, tt.want)
		}
	}
	if _, ok := data["orphan"]; ok {
		t.Error("DEPURADOR_ORPHAN should be skipped")
	}
	if len(data) != 2 {
		t.Errorf("sections = %v, want server and engine", data)
	}
}

func TestParseEnvValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"OFF", false},
		{"0", int64(0)},
		{"1.5", 1.5},
		{"10s", "10s"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseEnvValue(tt.in); got != tt.want {
			t.Errorf("parseEnvValue(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
		}
	}
}
