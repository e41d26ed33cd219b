package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables read into the env layer.
const EnvPrefix = "DEPURADOR_"

// envAliases maps short variable names to setting paths.
var envAliases = map[string]string{
	"DEPURADOR_PORT":      "server.port",
	"DEPURADOR_HOST":      "server.host",
	"DEPURADOR_LOG_LEVEL": "logging.level",
}

// LoadFile reads a config file, choosing the decoder by extension.
// A missing file returns nil, nil.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return parseFile(path, data)
}

func parseFile(path string, data []byte) (map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return parseTOML(path, data)
	case ".yaml", ".yml":
		return parseYAML(path, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func parseTOML(path string, data []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		pe := &ParseError{Path: path, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, _ = de.Position()
		}
		return nil, pe
	}
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

func parseYAML(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	out, _ := normalizeYAML(raw).(map[string]any)
	if out == nil {
		out = make(map[string]any)
	}
	return out, nil
}

// normalizeYAML converts nested map[any]any values into map[string]any
// so YAML and TOML layers merge the same way.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}

// LoadEnv builds a layer from DEPURADOR_* variables.
// DEPURADOR_SERVER_MAX_LINE_BYTES becomes server.max_line_bytes: the first
// segment names the section and the rest the setting.
func LoadEnv(environ []string) map[string]any {
	out := make(map[string]any)
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		path, ok := envAliases[name]
		if !ok {
			path, ok = envToPath(name)
			if !ok {
				continue
			}
		}
		_ = setPath(out, path, parseEnvValue(value))
	}
	return out
}

func envToPath(name string) (string, bool) {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok || section == "" || key == "" {
		return "", false
	}
	return section + "." + key, true
}

// parseEnvValue converts a variable into a bool, integer, float or string.
func parseEnvValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
