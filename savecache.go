package hab

import (
	"encoding/json"
	"path"

	"github.com/hab-env/hab/internal/cache"
	"github.com/hab-env/hab/internal/distro"
	"github.com/hab-env/hab/internal/loader"
	"github.com/hab-env/hab/internal/platform"
	"github.com/hab-env/hab/internal/solver"
)

// distroCachePayload is the JSON projection of distro.Descriptor that
// save-cache persists. Requirements are stored as their declaration specs
// and re-parsed on load.
type distroCachePayload struct {
	Name        string
	Version     string
	Distros     map[string]string
	Environment *loader.RawEnvironment
	Aliases     map[string][]loader.RawAliasEntry
	AliasMods   loader.RawAliasMods
}

func newDistroCachePayload(d *distro.Descriptor) distroCachePayload {
	return distroCachePayload{
		Name:        d.Name,
		Version:     d.Version,
		Distros:     specsFromRequirements(d.Requirements),
		Environment: d.Environment,
		Aliases:     d.Aliases,
		AliasMods:   d.AliasMods,
	}
}

// configCachePayload is the equivalent projection of a ConfigNode.
type configCachePayload struct {
	Name            string
	Context         []string
	Inherits        *bool
	Variables       map[string]interface{}
	Distros         map[string]string
	OptionalDistros []string
	Environment     *loader.RawEnvironment
	AliasMods       loader.RawAliasMods
	MinVerbosity    int
	Aliases         map[string][]loader.RawAliasEntry
}

func newConfigCachePayload(cn *ConfigNode) configCachePayload {
	p := configCachePayload{
		Name:         cn.Name,
		Context:      cn.Context,
		Inherits:     cn.Inherits,
		Variables:    cn.Variables,
		Distros:      specsFromRequirements(cn.Distros),
		Environment:  cn.Environment,
		AliasMods:    cn.AliasMods,
		MinVerbosity: cn.MinVerbosity,
		Aliases:      cn.Aliases,
	}
	for name := range cn.OptionalDistros {
		p.OptionalDistros = append(p.OptionalDistros, name)
	}
	return p
}

func specsFromRequirements(reqs map[string]solver.Requirement) map[string]string {
	if len(reqs) == 0 {
		return nil
	}
	out := make(map[string]string, len(reqs))
	for name, req := range reqs {
		out[name] = req.Spec
	}
	return out
}

// configNodeFromCacheEntry rebuilds a ConfigNode from its cached record,
// the load-time inverse of newConfigCachePayload.
func configNodeFromCacheEntry(e cache.Entry) (*ConfigNode, error) {
	var p configCachePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	node := &ConfigNode{
		Name:         p.Name,
		Context:      p.Context,
		SourcePath:   e.Descriptor,
		Dirname:      path.Dir(e.Descriptor),
		Inherits:     p.Inherits,
		Variables:    p.Variables,
		Environment:  p.Environment,
		AliasMods:    p.AliasMods,
		MinVerbosity: p.MinVerbosity,
		Aliases:      p.Aliases,
	}
	if len(p.Distros) > 0 {
		reqs, err := distro.RequirementsFromMap(p.Distros)
		if err != nil {
			return nil, err
		}
		node.Distros = reqs
	}
	if len(p.OptionalDistros) > 0 {
		node.OptionalDistros = map[string]bool{}
		for _, n := range p.OptionalDistros {
			node.OptionalDistros[n] = true
		}
	}
	return node, nil
}

// descriptorFromCacheEntry rebuilds a distro.Descriptor from its cached
// record, skipping the descriptor file read entirely.
func descriptorFromCacheEntry(e cache.Entry, root string) (*distro.Descriptor, error) {
	var p distroCachePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	reqs, err := distro.RequirementsFromMap(p.Distros)
	if err != nil {
		return nil, err
	}
	return &distro.Descriptor{
		Name:         p.Name,
		Version:      p.Version,
		Requirements: reqs,
		Environment:  p.Environment,
		Aliases:      p.Aliases,
		AliasMods:    p.AliasMods,
		Location: distro.Location{
			Root:   root,
			Path:   platform.Current().ToNative(e.Descriptor),
			Cached: true,
		},
	}, nil
}

// SaveCache (re)generates the on-disk index cache for every site file this
// Resolver was built from. Each site file gets its own cache populated only
// from the config_paths/distro_paths *that file itself* declares, reloaded
// standalone rather than through the merged, inheritance-aware Site the
// Resolver otherwise uses.
func (r *Resolver) SaveCache() error {
	for _, siteFile := range r.Site.Paths {
		if err := r.saveCacheFor(siteFile); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) saveCacheFor(siteFile string) error {
	own, err := LoadSite([]string{siteFile})
	if err != nil {
		return err
	}

	c, err := cache.Open(r.Site.CacheFileFor(siteFile))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SetVersion(cache.SupportedVersion); err != nil {
		return err
	}

	for _, root := range own.ConfigPaths {
		files, err := globConfigDir(root)
		if err != nil {
			r.Log.Warnf("save-cache: skipping config path %s: %v", root, err)
			continue
		}
		for _, f := range files {
			cn, err := loadConfigFile(f)
			if err != nil {
				r.Log.Warnf("save-cache: skipping config descriptor %s: %v", f, err)
				continue
			}
			if err := c.Put("config_paths", root, f, newConfigCachePayload(cn)); err != nil {
				return err
			}
		}
	}

	finders, err := buildFinders(own)
	if err != nil {
		return err
	}
	for i, root := range own.DistroPaths {
		locations, err := finders[i].Enumerate()
		if err != nil {
			r.Log.Warnf("save-cache: finder enumeration unavailable for %s: %v", root, err)
			continue
		}
		for _, loc := range locations {
			d, err := finders[i].LoadDescriptor(loc)
			if err != nil {
				if distro.IsIgnoredVersion(err) {
					continue
				}
				r.Log.Warnf("save-cache: skipping distro descriptor %s: %v", loc.Path, err)
				continue
			}
			if err := c.Put("distro_paths", root, loc.Path, newDistroCachePayload(d)); err != nil {
				return err
			}
		}
	}

	return nil
}
