package config

import "slices"

// ServerDiff describes what changed between two configs over the set of
// child servers. Grounded on spec §4.E and original_source/config_reloader.py
// (HotReloadServerManager.reload_config / _server_config_changed).
type ServerDiff struct {
	ToRemove []string // present in old, absent in new
	ToAdd    []string // present in new, absent in old
	ToUpdate []string // present in both but with a structural field change
}

// Diff compares old and new configs and returns the three-way server diff
// used by the Hot-Reload Controller (§4.E). Only the fields {command, args,
// env, timeout, enabled} are compared when deciding ToUpdate, matching
// _server_config_changed in the Python original.
func Diff(old, new *Config) ServerDiff {
	oldByName := make(map[string]ServerSpec, len(old.Servers))
	for _, s := range old.Servers {
		oldByName[s.Name] = s
	}
	newByName := make(map[string]ServerSpec, len(new.Servers))
	for _, s := range new.Servers {
		newByName[s.Name] = s
	}

	var d ServerDiff
	for name := range oldByName {
		if _, ok := newByName[name]; !ok {
			d.ToRemove = append(d.ToRemove, name)
		}
	}
	for name, newSpec := range newByName {
		oldSpec, ok := oldByName[name]
		if !ok {
			d.ToAdd = append(d.ToAdd, name)
			continue
		}
		if serverSpecChanged(oldSpec, newSpec) {
			d.ToUpdate = append(d.ToUpdate, name)
		}
	}

	slices.Sort(d.ToRemove)
	slices.Sort(d.ToAdd)
	slices.Sort(d.ToUpdate)
	return d
}

// serverSpecChanged compares the hot-reload-relevant fields of two specs for
// the same server name: command, args, env, timeout, enabled.
func serverSpecChanged(old, new ServerSpec) bool {
	if old.Command != new.Command {
		return true
	}
	if !slices.Equal(old.Args, new.Args) {
		return true
	}
	if !mapsEqual(old.Env, new.Env) {
		return true
	}
	if old.Timeout() != new.Timeout() {
		return true
	}
	if old.Enabled != new.Enabled {
		return true
	}
	return false
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
