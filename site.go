package hab

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hab-env/hab/internal/loader"
	"github.com/hab-env/hab/internal/platform"
)

// Site is the aggregated, platform-collapsed configuration of the
// installation, merged right-to-left across every site file a Resolver was
// built with: the left-most, most-authoritative path is applied last.
type Site struct {
	Paths []string // the site files themselves, most-authoritative first

	ConfigPaths       []string
	DistroPaths       []string
	IgnoredDistros    map[string]bool
	Platforms         []string
	Prereleases       bool
	PlatformPathMaps  map[string]platform.PathMapping
	SiteCacheTemplate string
	Colorize          bool
	PrefsDefault      string
	PrefsURITimeout   int
	EntryPoints       map[string]string
}

// defaultSite holds the built-in settings: always present, overridable by
// any loaded file.
func defaultSite() *Site {
	return &Site{
		ConfigPaths:    nil,
		DistroPaths:    nil,
		IgnoredDistros: map[string]bool{"release": true, "pre": true},
		Platforms:      []string{"windows", "osx", "linux"},
		Colorize:       true,
	}
}

// LoadSite reads and merges every site file in paths, most-authoritative
// first. hab does no env-var or home-dir expansion on the paths (a
// CLI-edge concern); it only reads what it is given.
func LoadSite(paths []string) (*Site, error) {
	site := defaultSite()
	site.Paths = append([]string{}, paths...)

	for i := len(paths) - 1; i >= 0; i-- {
		raw, err := loadSiteFile(paths[i])
		if err != nil {
			return nil, err
		}
		site.merge(raw, filepath.Dir(paths[i]))
	}

	return site, nil
}

func loadSiteFile(path string) (*loader.RawSite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw loader.RawSite
	var decodeErr error
	if loader.IsTOML(path) {
		decodeErr = loader.LoadTOML(data, &raw)
	} else {
		decodeErr = loader.LoadJSON(data, &raw)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return &raw, nil
}

// merge folds one site file's contents onto s, resolving any relative
// config_paths/distro_paths entries against the file's own directory
// (relative_root), and letting this (later-applied, more-authoritative)
// file's scalars override what came before while list-valued keys
// accumulate.
func (s *Site) merge(raw *loader.RawSite, relativeRoot string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
			return p
		}
		return filepath.Join(relativeRoot, p)
	}

	for _, p := range raw.ConfigPaths {
		s.ConfigPaths = append(s.ConfigPaths, resolve(p))
	}
	for _, p := range raw.DistroPaths {
		s.DistroPaths = append(s.DistroPaths, resolve(p))
	}
	for _, d := range raw.IgnoredDistros {
		s.IgnoredDistros[d] = true
	}
	if len(raw.Platforms) > 0 {
		s.Platforms = raw.Platforms
	}
	if raw.Prereleases != nil {
		s.Prereleases = *raw.Prereleases
	}
	if len(raw.PlatformPathMaps) > 0 {
		if s.PlatformPathMaps == nil {
			s.PlatformPathMaps = map[string]platform.PathMapping{}
		}
		for name, m := range raw.PlatformPathMaps {
			mapping := platform.PathMapping{}
			for plat, p := range m {
				pp, err := platform.Parse(plat)
				if err != nil {
					continue
				}
				mapping[pp] = p
			}
			s.PlatformPathMaps[name] = mapping
		}
	}
	if raw.SiteCacheTemplate != "" {
		s.SiteCacheTemplate = raw.SiteCacheTemplate
	}
	if raw.Colorize != nil {
		s.Colorize = *raw.Colorize
	}
	if raw.PrefsDefault != "" {
		s.PrefsDefault = raw.PrefsDefault
	}
	if raw.PrefsURITimeout != 0 {
		s.PrefsURITimeout = raw.PrefsURITimeout
	}
	if len(raw.EntryPoints) > 0 {
		if s.EntryPoints == nil {
			s.EntryPoints = map[string]string{}
		}
		for k, v := range raw.EntryPoints {
			s.EntryPoints[k] = v
		}
	}
}

// CacheFileFor derives a site file's cache path from SiteCacheTemplate,
// substituting `{stem}` with the site file's own base name sans extension.
// A blank template falls back to
// the site file's path with its extension replaced by ".cache".
func (s *Site) CacheFileFor(siteFile string) string {
	ext := filepath.Ext(siteFile)
	stem := strings.TrimSuffix(filepath.Base(siteFile), ext)
	if s.SiteCacheTemplate == "" {
		return filepath.Join(filepath.Dir(siteFile), stem+".cache")
	}
	name := strings.ReplaceAll(s.SiteCacheTemplate, "{stem}", stem)
	return filepath.Join(filepath.Dir(siteFile), name)
}

// CacheFiles returns the cache path for every site file, in the same
// most-authoritative-first order as Paths (for cache.LoadAndFlatten).
func (s *Site) CacheFiles() []string {
	out := make([]string, len(s.Paths))
	for i, p := range s.Paths {
		out[i] = s.CacheFileFor(p)
	}
	return out
}
