// Package config provides the configuration schema, loader, validator, and
// hot-reload diff/watch primitives for the mcgateway tool-call gateway.
package config

import "encoding/json"

// Config is the root configuration document for mcgateway, decoded from a
// JSON file (see mcp-servers.json in the wild).
type Config struct {
	Servers    []ServerSpec         `json:"servers"`
	Namespaces map[string]Namespace `json:"namespaces"`
	Groups     map[string]Group     `json:"groups"`
	Manifests  ManifestsConfig      `json:"manifests"`
	Sandbox    SandboxConfig        `json:"sandbox"`
}

// ServerSpec is the declarative configuration for a single child MCP server.
// Immutable once loaded; a changed spec is replaced wholesale on hot-reload.
type ServerSpec struct {
	// Name uniquely identifies this child within the gateway.
	Name string `json:"name"`

	// Command is the executable launched to start the child.
	Command string `json:"command"`

	// Args is the ordered argument list passed to Command.
	Args []string `json:"args,omitempty"`

	// Env holds additional environment variables injected into the child
	// process, merged over (not replacing) the gateway's own environment.
	Env map[string]string `json:"env,omitempty"`

	// TimeoutSecs bounds how long the start protocol waits for the child's
	// initialize reply. Zero means the default of 60 seconds.
	TimeoutSecs int `json:"timeout,omitempty"`

	// Enabled controls whether the Pool spawns this server at all. Defaults
	// to true when the key is absent — see UnmarshalJSON.
	Enabled bool `json:"enabled"`
}

// Timeout returns the effective start-protocol timeout in seconds.
func (s ServerSpec) Timeout() int {
	if s.TimeoutSecs <= 0 {
		return 60
	}
	return s.TimeoutSecs
}

// UnmarshalJSON decodes a ServerSpec, defaulting Enabled to true when the
// "enabled" key is absent from the source document.
func (s *ServerSpec) UnmarshalJSON(data []byte) error {
	type shadow struct {
		Name        string            `json:"name"`
		Command     string            `json:"command"`
		Args        []string          `json:"args,omitempty"`
		Env         map[string]string `json:"env,omitempty"`
		TimeoutSecs int               `json:"timeout,omitempty"`
		Enabled     *bool             `json:"enabled"`
	}
	var sh shadow
	if err := json.Unmarshal(data, &sh); err != nil {
		return err
	}
	s.Name = sh.Name
	s.Command = sh.Command
	s.Args = sh.Args
	s.Env = sh.Env
	s.TimeoutSecs = sh.TimeoutSecs
	if sh.Enabled == nil {
		s.Enabled = true
	} else {
		s.Enabled = *sh.Enabled
	}
	return nil
}

// Namespace is a named, possibly-inheriting set of child names defining
// access scope. See spec §3 and §4.C.
type Namespace struct {
	Servers  []string `json:"servers,omitempty"`
	Extends  []string `json:"extends,omitempty"`
	Isolated bool     `json:"isolated,omitempty"`
}

// UnmarshalJSON accepts both shapes spec §6 allows for a namespace value: a
// bare array of server names (shorthand for {"servers": [...]}), or the full
// {servers, extends?, isolated?} object.
func (n *Namespace) UnmarshalJSON(data []byte) error {
	var servers []string
	if err := json.Unmarshal(data, &servers); err == nil {
		n.Servers = servers
		n.Extends = nil
		n.Isolated = false
		return nil
	}

	type shadow struct {
		Servers  []string `json:"servers,omitempty"`
		Extends  []string `json:"extends,omitempty"`
		Isolated bool     `json:"isolated,omitempty"`
	}
	var sh shadow
	if err := json.Unmarshal(data, &sh); err != nil {
		return err
	}
	n.Servers = sh.Servers
	n.Extends = sh.Extends
	n.Isolated = sh.Isolated
	return nil
}

// Group is a second-order namespace: a named union of Namespace references.
// A reference prefixed with "!" force-includes an isolated namespace.
type Group struct {
	Namespaces []string `json:"namespaces"`
}

// ManifestsConfig tunes the Manifest Registry (§4.D).
type ManifestsConfig struct {
	StartupDwellSecs int `json:"startup_dwell_secs,omitempty"`
	PerServerTTL     int `json:"per_server_ttl,omitempty"`
}

// SandboxConfig tunes the Sandbox Runner (§4.G).
type SandboxConfig struct {
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
	MemoryMB    int    `json:"memory_mb,omitempty"`
	UvPath      string `json:"uv_path,omitempty"`
}

// TimeoutOrDefault returns the configured sandbox execution timeout, or the
// 30-second default from spec §4.G when unset.
func (s SandboxConfig) TimeoutOrDefault() int {
	if s.TimeoutSecs <= 0 {
		return 30
	}
	return s.TimeoutSecs
}
