package hab

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hab-env/hab/internal/cache"
	"github.com/hab-env/hab/internal/distro"
	"github.com/hab-env/hab/internal/forest"
	"github.com/hab-env/hab/internal/platform"
	"github.com/hab-env/hab/internal/solver"
)

// URIValidator inspects a URI before resolution; it may return a modified
// URI, or an error to reject it outright. Validators are registered by the
// embedding application (the entry-point plugin loading itself lives at the
// CLI edge, outside the core).
type URIValidator func(uri string) (string, error)

// Resolver turns a URI into a FlatConfig. It owns the config forest, the
// distro tree, and the optional persistent index caches, and is explicitly
// constructed rather than reached through any package-level singleton.
type Resolver struct {
	Site         *Site
	ConfigForest *forest.Forest
	Distros      *DistroTree

	ConfigCache *cache.Index
	DistroCache *cache.Index

	Platform      platform.Platform
	Prereleases   bool
	Forced        map[string]solver.Requirement
	Omittable     map[string]bool
	URIValidators []URIValidator
	Log           Logger

	finders []distro.Finder
}

// NewResolver assembles a Resolver from an already-loaded Site, the current
// host platform, and an optional Logger (nil uses discardLogger). Index
// caches saved by a prior save-cache are loaded up front; a root with cache
// entries skips its filesystem scan entirely, a root without falls back to
// live enumeration.
func NewResolver(site *Site, log Logger) (*Resolver, error) {
	if log == nil {
		log = discardLogger{}
	}
	r := &Resolver{
		Site:        site,
		Platform:    platform.Current(),
		Prereleases: site.Prereleases,
		Forced:      map[string]solver.Requirement{},
		Omittable:   map[string]bool{},
		Log:         log,
	}
	warnf := func(format string, args ...interface{}) { r.Log.Warnf(format, args...) }

	cacheFiles := site.CacheFiles()
	configIdx, err := cache.LoadAndFlatten(cacheFiles, "config_paths", warnf)
	if err != nil {
		return nil, err
	}
	distroIdx, err := cache.LoadAndFlatten(cacheFiles, "distro_paths", warnf)
	if err != nil {
		return nil, err
	}
	r.ConfigCache = configIdx
	r.DistroCache = distroIdx

	configForest := forest.New()
	for _, root := range site.ConfigPaths {
		nodes := r.configNodesFor(root, warnf)
		for _, cn := range nodes {
			cn.SourceRoot = root
			path := append(append([]string{}, cn.Context...), cn.Name)
			_, warn, err := configForest.Insert(path, root, cn)
			if err != nil {
				return nil, wrapComponentError(err)
			}
			if warn != nil {
				warnf("%s", warn.Message)
			}
		}
	}
	r.ConfigForest = configForest

	finders, err := buildFinders(site)
	if err != nil {
		return nil, err
	}
	r.finders = finders

	distros := NewDistroTree()
	for i, root := range site.DistroPaths {
		f := finders[i]
		if s3, ok := f.(*distro.S3Finder); ok {
			distros.AddFromCache(s3, root, distroIdx.ForDir(root))
			continue
		}
		if entries := distroIdx.ForDir(root); len(entries) > 0 {
			for _, e := range entries {
				d, err := descriptorFromCacheEntry(e, root)
				if err != nil {
					warnf("skipping cached distro descriptor %s: %v", e.Descriptor, err)
					continue
				}
				if err := distros.addEager(d); err != nil {
					warnf("skipping cached distro descriptor %s: %v", e.Descriptor, err)
				}
			}
			continue
		}
		loadFinderInto(distros, f, warnf)
	}
	r.Distros = distros

	return r, nil
}

// configNodesFor loads every config node beneath root, preferring the index
// cache's snapshot over a live glob.
func (r *Resolver) configNodesFor(root string, warnf func(format string, args ...interface{})) []*ConfigNode {
	if entries := r.ConfigCache.ForDir(root); len(entries) > 0 {
		var out []*ConfigNode
		for _, e := range entries {
			cn, err := configNodeFromCacheEntry(e)
			if err != nil {
				warnf("skipping cached config descriptor %s: %v", e.Descriptor, err)
				continue
			}
			out = append(out, cn)
		}
		return out
	}

	files, err := globConfigDir(root)
	if err != nil {
		warnf("skipping config path %s: %v", root, err)
		return nil
	}
	var out []*ConfigNode
	for _, f := range files {
		cn, err := loadConfigFile(f)
		if err != nil {
			warnf("skipping config descriptor %s: %v", f, err)
			continue
		}
		out = append(out, cn)
	}
	return out
}

// buildFinders maps each of the site's distro_paths entries to a concrete
// Finder: `s3://bucket/prefix` roots use S3Finder, local roots are probed
// by sniffFinder for their on-disk layout.
func buildFinders(site *Site) ([]distro.Finder, error) {
	finders := make([]distro.Finder, 0, len(site.DistroPaths))
	for _, root := range site.DistroPaths {
		if strings.HasPrefix(root, "s3://") {
			trimmed := strings.TrimPrefix(root, "s3://")
			parts := strings.SplitN(trimmed, "/", 2)
			bucket := parts[0]
			prefix := ""
			if len(parts) > 1 {
				prefix = parts[1]
			}
			f, err := distro.NewS3Finder(context.Background(), bucket, prefix)
			if err != nil {
				return nil, err
			}
			finders = append(finders, f)
			continue
		}
		finders = append(finders, sniffFinder(filepath.Clean(root), site.IgnoredDistros))
	}
	return finders, nil
}

// sniffFinder picks the finder variant for one local distro root by its
// top-level layout: sidecar descriptors (`*.descriptor.json` beside their
// archives) select ArchiveSidecarFinder, bare `*.zip` archives carrying
// their descriptor inline select ArchiveInlineFinder, and anything else is
// treated as a plain directory tree. An unreadable root still gets a
// DirFinder; its Enumerate surfaces the real error.
func sniffFinder(root string, ignored map[string]bool) distro.Finder {
	entries, err := os.ReadDir(root)
	if err != nil {
		return distro.NewDirFinder(root, ignored)
	}
	hasZip := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".descriptor.json") {
			return distro.NewArchiveSidecarFinder(root, ignored)
		}
		if strings.HasSuffix(e.Name(), ".zip") {
			hasZip = true
		}
	}
	if hasZip {
		return distro.NewArchiveInlineFinder(root, ignored)
	}
	return distro.NewDirFinder(root, ignored)
}

// Resolve turns uri into a FlatConfig: the URI is passed through any
// registered validators (which may rewrite or reject it), matched to the
// closest config node (falling back to the default tree's longest-prefix
// match), and composed into its environment, aliases and distro versions.
func (r *Resolver) Resolve(uri string) (*FlatConfig, error) {
	for _, validate := range r.URIValidators {
		fixed, err := validate(uri)
		if err != nil {
			return nil, err
		}
		uri = fixed
	}
	node := r.ConfigForest.Closest(uri)
	if node == nil {
		return nil, newHabError("no configuration found for uri " + uri)
	}
	return r.buildFlatConfig(node, uri)
}

// ClearCaches releases every finder's in-memory caches; with persistent set
// it also deletes the on-disk index cache file of every site file.
func (r *Resolver) ClearCaches(persistent bool) {
	for _, f := range r.finders {
		f.ClearCache(persistent)
	}
	if persistent {
		for _, p := range r.Site.CacheFiles() {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				r.Log.Warnf("clear-cache: could not remove %s: %v", p, err)
			}
		}
	}
}
