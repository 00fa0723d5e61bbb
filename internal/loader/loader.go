// Package loader is the descriptor-file boundary: it decodes site, config
// and distro descriptor files (JSON with permitted `//` line comments, or
// TOML) into raw records. Descriptor files are decoded only here; callers
// receive the Raw* records. Other packages still use encoding/json for
// their own payloads (cache entries, the freeze codec).
package loader

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// RawOps mirrors one set/unset/prepend/append operation block as found in
// a descriptor's `environment` or a site file's top-level keys.
type RawOps struct {
	Unset   []string               `json:"unset,omitempty" toml:"unset,omitempty"`
	Set     map[string]interface{} `json:"set,omitempty" toml:"set,omitempty"`
	Prepend map[string]interface{} `json:"prepend,omitempty" toml:"prepend,omitempty"`
	Append  map[string]interface{} `json:"append,omitempty" toml:"append,omitempty"`
}

// RawEnvironment is either a single RawOps (os-agnostic) or a per-platform
// map including the "*" wildcard block (os-specific).
type RawEnvironment struct {
	OSSpecific bool
	Wildcard   *RawOps
	PerOS      map[string]RawOps
	Agnostic   *RawOps
}

// UnmarshalJSON implements the two descriptor shapes: a flat ops block, or
// a map of platform name (or "*") to ops blocks.
func (e *RawEnvironment) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	// If every key in the object looks like an ops verb
	// (set/unset/prepend/append), it's an os-agnostic block; otherwise
	// treat keys as platform names.
	isVerb := func(k string) bool {
		switch k {
		case "set", "unset", "prepend", "append":
			return true
		default:
			return false
		}
	}
	allVerbs := true
	for k := range probe {
		if !isVerb(k) {
			allVerbs = false
			break
		}
	}
	if allVerbs {
		var ops RawOps
		if err := json.Unmarshal(data, &ops); err != nil {
			return err
		}
		e.OSSpecific = false
		e.Agnostic = &ops
		return nil
	}
	e.OSSpecific = true
	e.PerOS = map[string]RawOps{}
	for k, raw := range probe {
		var ops RawOps
		if err := json.Unmarshal(raw, &ops); err != nil {
			return errors.Wrapf(err, "platform block %q", k)
		}
		if k == "*" {
			w := ops
			e.Wildcard = &w
			continue
		}
		e.PerOS[k] = ops
	}
	return nil
}

// MarshalJSON writes the descriptor shape back out: a flat ops block for an
// os-agnostic environment, a platform-keyed map (with "*" for the wildcard
// block) otherwise. Keeps cached records decodable by UnmarshalJSON above.
func (e RawEnvironment) MarshalJSON() ([]byte, error) {
	if !e.OSSpecific {
		if e.Agnostic == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(e.Agnostic)
	}
	out := make(map[string]RawOps, len(e.PerOS)+1)
	for k, ops := range e.PerOS {
		out[k] = ops
	}
	if e.Wildcard != nil {
		out["*"] = *e.Wildcard
	}
	return json.Marshal(out)
}

// RawAliasEntry is one [name, value] pair from a descriptor's `aliases`
// per-platform list; value is either a bare command string/list or a dict
// with `cmd` and optional `environment`.
type RawAliasEntry struct {
	Name  string
	Value interface{}
}

// UnmarshalJSON decodes the two-element `[name, value]` array form used by
// descriptor `aliases` lists.
func (a *RawAliasEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(err, "decoding alias entry")
	}
	if err := json.Unmarshal(pair[0], &a.Name); err != nil {
		return errors.Wrap(err, "decoding alias name")
	}
	var v interface{}
	if err := json.Unmarshal(pair[1], &v); err != nil {
		return errors.Wrap(err, "decoding alias value")
	}
	a.Value = v
	return nil
}

// MarshalJSON writes the `[name, value]` array form back out.
func (a RawAliasEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{a.Name, a.Value})
}

// RawAliasMods is an `alias_mods` block: alias name -> the per-platform
// environment operations that should be overlaid onto that alias wherever
// it ends up being defined.
type RawAliasMods map[string]*RawEnvironment

// RawConfig is a config descriptor.
type RawConfig struct {
	Name            string                     `json:"name" toml:"name"`
	Context         []string                   `json:"context" toml:"context"`
	Inherits        *bool                      `json:"inherits" toml:"inherits"`
	Variables       map[string]interface{}     `json:"variables" toml:"variables"`
	Distros         map[string]string          `json:"distros" toml:"distros"`
	OptionalDistros []string                   `json:"optional_distros" toml:"optional_distros"`
	Environment     *RawEnvironment            `json:"environment" toml:"-"`
	Aliases         map[string][]RawAliasEntry `json:"aliases" toml:"-"`
	AliasMods       RawAliasMods               `json:"alias_mods" toml:"-"`
	MinVerbosity    int                        `json:"min_verbosity" toml:"min_verbosity"`
	Version         string                     `json:"version" toml:"version"`
}

// RawDistro is a distro descriptor.
type RawDistro struct {
	Name        string                     `json:"name" toml:"name"`
	Version     string                     `json:"version" toml:"version"`
	Distros     map[string]string          `json:"distros" toml:"distros"`
	Environment *RawEnvironment            `json:"environment" toml:"-"`
	Aliases     map[string][]RawAliasEntry `json:"aliases" toml:"-"`
	AliasMods   RawAliasMods               `json:"alias_mods" toml:"-"`
}

// RawSite is a site descriptor.
type RawSite struct {
	ConfigPaths       []string                     `json:"config_paths" toml:"config_paths"`
	DistroPaths       []string                     `json:"distro_paths" toml:"distro_paths"`
	IgnoredDistros    []string                     `json:"ignored_distros" toml:"ignored_distros"`
	Platforms         []string                     `json:"platforms" toml:"platforms"`
	Prereleases       *bool                        `json:"prereleases" toml:"prereleases"`
	PlatformPathMaps  map[string]map[string]string `json:"platform_path_maps" toml:"platform_path_maps"`
	SiteCacheTemplate string                       `json:"site_cache_file_template" toml:"site_cache_file_template"`
	Colorize          *bool                        `json:"colorize" toml:"colorize"`
	PrefsDefault      string                       `json:"prefs_default" toml:"prefs_default"`
	PrefsURITimeout   int                          `json:"prefs_uri_timeout" toml:"prefs_uri_timeout"`
	EntryPoints       map[string]string            `json:"entry_points" toml:"entry_points"`
}

// stripLineComments removes `//`-prefixed line comments outside of string
// literals, permitting the commented-JSON descriptor format. It is a small
// scanner, not a full tokenizer, but is exact for the well-formed
// descriptor files hab reads.
func stripLineComments(data []byte) []byte {
	var out bytes.Buffer
	inString := false
	escaped := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(data) && data[i+1] == '/' {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			out.WriteByte('\n')
			continue
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}

// LoadJSON decodes JSON-with-line-comments bytes into v.
func LoadJSON(data []byte, v interface{}) error {
	clean := stripLineComments(data)
	if err := json.Unmarshal(clean, v); err != nil {
		return errors.Wrap(err, "decoding descriptor JSON")
	}
	return nil
}

// LoadTOML decodes TOML bytes into v, used for site files authored in
// TOML.
func LoadTOML(data []byte, v interface{}) error {
	if err := toml.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "decoding descriptor TOML")
	}
	return nil
}

// IsTOML is a small filename-extension sniff used by callers deciding
// which decoder to invoke.
func IsTOML(filename string) bool {
	return strings.HasSuffix(filename, ".toml")
}
