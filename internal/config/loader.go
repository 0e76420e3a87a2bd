package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
)

// envVarPattern matches "${NAME}" interpolation placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, parses, and validates the JSON configuration file
// at path. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a JSON config from r, interpolates environment
// variables into every string value, and validates the result. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}
	raw = interpolateEnvVars(raw)

	interpolated, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode interpolated json: %w", err)
	}

	if err := ValidateSchema(raw); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(interpolated, cfg); err != nil {
		return nil, fmt.Errorf("config: decode into schema: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// interpolateEnvVars walks a decoded JSON tree (map[string]any / []any /
// string / ...) replacing "${NAME}" in every string with the value of the
// matching environment variable, or the empty string with a warning if unset.
// Grounded on original_source/config_watcher.py's interpolate_env_vars.
func interpolateEnvVars(value any) any {
	switch v := value.(type) {
	case string:
		return envVarPattern.ReplaceAllStringFunc(v, func(match string) string {
			name := envVarPattern.FindStringSubmatch(match)[1]
			val, ok := os.LookupEnv(name)
			if !ok {
				slog.Warn("environment variable not found, using empty string", "name", name)
				return ""
			}
			return val
		})
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = interpolateEnvVars(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateEnvVars(item)
		}
		return out
	default:
		return value
	}
}

// ValidateSchema performs the pre-parse structural schema check: a required
// "servers" array, per-server required non-empty "name"/"command" strings,
// and type checks on optional "args"/"env"/"timeout" fields.
//
// Grounded on original_source/config_watcher.py::validate_schema — this
// check runs against the raw decoded document so it can report exactly which
// field is malformed, the way the Python original does against the decoded
// dict before any struct binding happens.
func ValidateSchema(raw any) error {
	doc, ok := raw.(map[string]any)
	if !ok {
		return errors.New("config: document must be a JSON object")
	}

	serversRaw, ok := doc["servers"]
	if !ok {
		return errors.New("config: missing required 'servers' field")
	}
	servers, ok := serversRaw.([]any)
	if !ok {
		return errors.New("config: 'servers' must be an array")
	}

	var errs []error
	for i, entry := range servers {
		srv, ok := entry.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("config: server %d must be an object", i))
			continue
		}
		if name, nameOK := srv["name"].(string); !nameOK || name == "" {
			if _, present := srv["name"]; !present {
				errs = append(errs, fmt.Errorf("config: server %d missing required field 'name'", i))
			} else {
				errs = append(errs, fmt.Errorf("config: server %d 'name' must be a non-empty string", i))
			}
		}
		if cmd, cmdOK := srv["command"].(string); !cmdOK || cmd == "" {
			if _, present := srv["command"]; !present {
				errs = append(errs, fmt.Errorf("config: server %d missing required field 'command'", i))
			} else {
				errs = append(errs, fmt.Errorf("config: server %d 'command' must be a non-empty string", i))
			}
		}
		if argsRaw, present := srv["args"]; present {
			if _, ok := argsRaw.([]any); !ok {
				errs = append(errs, fmt.Errorf("config: server %d 'args' must be an array", i))
			}
		}
		if envRaw, present := srv["env"]; present {
			if _, ok := envRaw.(map[string]any); !ok {
				errs = append(errs, fmt.Errorf("config: server %d 'env' must be an object", i))
			}
		}
		if timeoutRaw, present := srv["timeout"]; present {
			if f, ok := timeoutRaw.(float64); !ok || f != float64(int(f)) {
				errs = append(errs, fmt.Errorf("config: server %d 'timeout' must be an integer", i))
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks namespace/group access-control rules and returns a joined
// error listing every failure found (spec §4.C "Validation (separate pass)").
func Validate(cfg *Config) error {
	var errs []error

	for name, ns := range cfg.Namespaces {
		if name == "" {
			errs = append(errs, errors.New("config: namespace has empty name"))
		}
		for _, parent := range ns.Extends {
			if _, ok := cfg.Namespaces[parent]; !ok {
				errs = append(errs, fmt.Errorf("config: namespace %q extends unknown namespace %q", name, parent))
			}
		}
		for _, serverName := range ns.Servers {
			if !serverKnown(cfg, serverName) {
				errs = append(errs, fmt.Errorf("config: namespace %q references unknown server %q", name, serverName))
			}
		}
	}

	for name, grp := range cfg.Groups {
		if len(grp.Namespaces) == 0 {
			errs = append(errs, fmt.Errorf("config: group %q has an empty 'namespaces' list", name))
			continue
		}
		for _, ref := range grp.Namespaces {
			nsName, forced := stripForcePrefix(ref)
			ns, ok := cfg.Namespaces[nsName]
			if !ok {
				errs = append(errs, fmt.Errorf("config: group %q references unknown namespace %q", name, nsName))
				continue
			}
			if ns.Isolated && !forced {
				errs = append(errs, fmt.Errorf("config: group %q references isolated namespace %q without '!' prefix", name, nsName))
			}
		}
	}

	if dupNames := duplicateServerNames(cfg.Servers); len(dupNames) > 0 {
		for _, n := range dupNames {
			errs = append(errs, fmt.Errorf("config: duplicate server name %q", n))
		}
	}

	return errors.Join(errs...)
}

func serverKnown(cfg *Config, name string) bool {
	for _, s := range cfg.Servers {
		if s.Name == name {
			return true
		}
	}
	return false
}

func duplicateServerNames(servers []ServerSpec) []string {
	seen := make(map[string]bool, len(servers))
	var dups []string
	for _, s := range servers {
		if seen[s.Name] {
			dups = append(dups, s.Name)
			continue
		}
		seen[s.Name] = true
	}
	return dups
}

// stripForcePrefix strips a leading "!" from a group's namespace reference,
// reporting whether the prefix was present (force-include of an isolated
// namespace).
func stripForcePrefix(ref string) (name string, forced bool) {
	if len(ref) > 0 && ref[0] == '!' {
		return ref[1:], true
	}
	return ref, false
}
