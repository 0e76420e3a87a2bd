package config

import (
	"os"
	"strings"
	"testing"
)

func TestLoadFromReader_EnvInterpolation(t *testing.T) {
	os.Setenv("MCGW_TEST_TOKEN", "secret123")
	defer os.Unsetenv("MCGW_TEST_TOKEN")

	doc := `{
		"servers": [
			{"name": "echo", "command": "echo-server", "env": {"TOKEN": "${MCGW_TEST_TOKEN}"}}
		]
	}`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Servers[0].Env["TOKEN"]; got != "secret123" {
		t.Errorf("TOKEN = %q, want %q", got, "secret123")
	}
}

func TestLoadFromReader_MissingEnvVarBecomesEmpty(t *testing.T) {
	os.Unsetenv("MCGW_DEFINITELY_UNSET")
	doc := `{"servers": [{"name": "echo", "command": "echo-server", "env": {"TOKEN": "${MCGW_DEFINITELY_UNSET}"}}]}`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Servers[0].Env["TOKEN"]; got != "" {
		t.Errorf("TOKEN = %q, want empty string", got)
	}
}

func TestServerSpec_EnabledDefaultsTrue(t *testing.T) {
	doc := `{"servers": [{"name": "a", "command": "a-bin"}, {"name": "b", "command": "b-bin", "enabled": false}]}`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cfg.Servers[0].Enabled {
		t.Error("server a: Enabled should default to true when key is absent")
	}
	if cfg.Servers[1].Enabled {
		t.Error("server b: Enabled should be false when explicitly set")
	}
}

func TestValidateSchema_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"missing servers key", `{}`, true},
		{"servers not array", `{"servers": {}}`, true},
		{"server missing name", `{"servers": [{"command": "x"}]}`, true},
		{"server missing command", `{"servers": [{"name": "x"}]}`, true},
		{"server empty name", `{"servers": [{"name": "", "command": "x"}]}`, true},
		{"args not array", `{"servers": [{"name": "x", "command": "y", "args": "z"}]}`, true},
		{"env not object", `{"servers": [{"name": "x", "command": "y", "env": "z"}]}`, true},
		{"timeout not integer", `{"servers": [{"name": "x", "command": "y", "timeout": 1.5}]}`, true},
		{"valid minimal", `{"servers": [{"name": "x", "command": "y"}]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.doc))
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLoadFromReader_NamespaceShorthandArray(t *testing.T) {
	doc := `{
		"servers": [
			{"name": "playwright", "command": "playwright-mcp"},
			{"name": "filesystem", "command": "fs-mcp"}
		],
		"namespaces": {
			"browser": ["playwright"],
			"files": ["filesystem"],
			"combined": {"servers": [], "extends": ["browser", "files"]}
		}
	}`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Namespaces["browser"].Servers; len(got) != 1 || got[0] != "playwright" {
		t.Errorf("browser.Servers = %v, want [playwright]", got)
	}
	if got := cfg.Namespaces["combined"].Extends; len(got) != 2 {
		t.Errorf("combined.Extends = %v, want [browser files]", got)
	}
}

func TestValidate_NamespaceUnknownExtends(t *testing.T) {
	cfg := &Config{
		Servers: []ServerSpec{{Name: "s1", Command: "x", Enabled: true}},
		Namespaces: map[string]Namespace{
			"combined": {Extends: []string{"nonexistent"}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for namespace extending unknown parent")
	}
}

func TestValidate_NamespaceUnknownServer(t *testing.T) {
	cfg := &Config{
		Servers:    []ServerSpec{{Name: "s1", Command: "x", Enabled: true}},
		Namespaces: map[string]Namespace{"ns": {Servers: []string{"ghost"}}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for namespace referencing unknown server")
	}
}

func TestValidate_GroupRules(t *testing.T) {
	base := Config{
		Servers: []ServerSpec{{Name: "s1", Command: "x", Enabled: true}},
		Namespaces: map[string]Namespace{
			"open":     {Servers: []string{"s1"}},
			"isolated": {Servers: []string{"s1"}, Isolated: true},
		},
	}

	t.Run("empty namespaces list", func(t *testing.T) {
		cfg := base
		cfg.Groups = map[string]Group{"g": {Namespaces: nil}}
		if err := Validate(&cfg); err == nil {
			t.Fatal("expected error for empty group namespaces list")
		}
	})

	t.Run("unknown namespace ref", func(t *testing.T) {
		cfg := base
		cfg.Groups = map[string]Group{"g": {Namespaces: []string{"ghost"}}}
		if err := Validate(&cfg); err == nil {
			t.Fatal("expected error for unknown namespace reference")
		}
	})

	t.Run("isolated without bang", func(t *testing.T) {
		cfg := base
		cfg.Groups = map[string]Group{"g": {Namespaces: []string{"isolated"}}}
		if err := Validate(&cfg); err == nil {
			t.Fatal("expected error for unprefixed isolated reference")
		}
	})

	t.Run("isolated with bang is fine", func(t *testing.T) {
		cfg := base
		cfg.Groups = map[string]Group{"g": {Namespaces: []string{"!isolated", "open"}}}
		if err := Validate(&cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
