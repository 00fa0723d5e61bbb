package hab

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/distro"
	"github.com/hab-env/hab/internal/formatter"
	"github.com/hab-env/hab/internal/loader"
	"github.com/hab-env/hab/internal/platform"
	"github.com/hab-env/hab/internal/solver"
)

// ConfigNode is the forest.Node payload for the config tree. Every field
// that participates in inheritance is nil/zero when not set by its
// descriptor, so the inheritance walk can tell "unset" from "set to
// empty".
type ConfigNode struct {
	Name       string
	Context    []string
	SourcePath string
	Dirname    string // relative_root: the descriptor's directory, forward-slashed
	SourceRoot string

	Inherits        *bool
	Variables       map[string]interface{}
	Distros         map[string]solver.Requirement
	OptionalDistros map[string]bool
	Environment     *loader.RawEnvironment
	AliasMods       loader.RawAliasMods
	MinVerbosity    int
	Aliases         map[string][]loader.RawAliasEntry
}

// InheritsOr returns whether this node inherits from its parent, defaulting
// to true when unset.
func (n *ConfigNode) InheritsOr() bool {
	if n.Inherits == nil {
		return true
	}
	return *n.Inherits
}

// fullpath renders a node's URI, including its root segment.
func (n *ConfigNode) fullpath() string {
	segs := append(append([]string{}, n.Context...), n.Name)
	out := segs[0]
	for _, s := range segs[1:] {
		out += "/" + s
	}
	return out
}

// loadConfigFile decodes one config descriptor file into a ConfigNode.
func loadConfigFile(path string) (*ConfigNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw loader.RawConfig
	var decodeErr error
	if loader.IsTOML(path) {
		decodeErr = loader.LoadTOML(data, &raw)
	} else {
		decodeErr = loader.LoadJSON(data, &raw)
	}
	if decodeErr != nil {
		return nil, errors.Wrapf(decodeErr, "decoding config descriptor %s", path)
	}

	if err := formatter.CheckReserved(raw.Variables); err != nil {
		return nil, wrapComponentError(err)
	}

	node := &ConfigNode{
		Name:         raw.Name,
		Context:      raw.Context,
		SourcePath:   path,
		Dirname:      platform.ToPosix(filepath.Dir(path)),
		Inherits:     raw.Inherits,
		Variables:    raw.Variables,
		MinVerbosity: raw.MinVerbosity,
		Aliases:      raw.Aliases,
		Environment:  raw.Environment,
		AliasMods:    raw.AliasMods,
	}
	if node.Name == "" {
		if len(raw.Context) > 0 {
			node.Name = raw.Context[len(raw.Context)-1]
			node.Context = raw.Context[:len(raw.Context)-1]
		} else {
			node.Name = filepath.Base(filepath.Dir(path))
		}
	}

	if len(raw.Distros) > 0 {
		reqs, err := distro.RequirementsFromMap(raw.Distros)
		if err != nil {
			return nil, errors.Wrapf(err, "config %s", path)
		}
		node.Distros = reqs
	}
	if len(raw.OptionalDistros) > 0 {
		node.OptionalDistros = map[string]bool{}
		for _, n := range raw.OptionalDistros {
			node.OptionalDistros[n] = true
		}
	}

	return node, nil
}

// globConfigDir finds every top-level `*.json`/`*.toml` descriptor beneath
// dir (one level, non-recursive; config descriptors don't nest directory
// structure the way distros do).
func globConfigDir(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.json", "*.toml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}
