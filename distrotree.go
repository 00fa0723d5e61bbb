package hab

import (
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/cache"
	"github.com/hab-env/hab/internal/distro"
	"github.com/hab-env/hab/internal/solver"
)

// DistroVersion adapts one discovered distro.Descriptor (or lazily-loaded
// identity) into the shape internal/solver.Version requires.
type DistroVersion struct {
	NameValue    string
	VersionValue string
	sv           *semver.Version
	prerelease   bool

	// Exactly one of descriptor or lazy is set.
	descriptor *distro.Descriptor
	lazy       *distro.LazyVersion
}

func newDistroVersion(name, version string) (*DistroVersion, error) {
	sv, err := semver.NewVersion(version)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing version %q for distro %q", version, name)
	}
	return &DistroVersion{
		NameValue:    name,
		VersionValue: version,
		sv:           sv,
		prerelease:   sv.Prerelease() != "",
	}, nil
}

// FamilyName, VersionString, SemVer and IsPrerelease satisfy solver.Version.
func (v *DistroVersion) FamilyName() string      { return v.NameValue }
func (v *DistroVersion) VersionString() string   { return v.VersionValue }
func (v *DistroVersion) SemVer() *semver.Version { return v.sv }
func (v *DistroVersion) IsPrerelease() bool      { return v.prerelease }

// Requirements satisfies solver.Version, delegating to whichever loading
// strategy this version was built with.
func (v *DistroVersion) Requirements() (map[string]solver.Requirement, error) {
	if v.lazy != nil {
		return v.lazy.Requirements()
	}
	return v.descriptor.Requirements, nil
}

// Descriptor returns the full parsed descriptor, loading it on first use for
// lazily-discovered versions.
func (v *DistroVersion) Descriptor() (*distro.Descriptor, error) {
	if v.lazy != nil {
		return v.lazy.Descriptor()
	}
	return v.descriptor, nil
}

// DistroFamily is every known version of one distro name, sorted ascending
// by semver.
type DistroFamily struct {
	NameValue string
	Versions  []*DistroVersion
}

func (f *DistroFamily) Name() string { return f.NameValue }

// LatestVersion implements solver.Family: the maximum version satisfying c,
// skipping prereleases unless prereleases is true.
func (f *DistroFamily) LatestVersion(c *semver.Constraints, prereleases bool) (solver.Version, bool) {
	var best *DistroVersion
	for _, dv := range f.Versions {
		if dv.IsPrerelease() && !prereleases {
			continue
		}
		if c != nil && !c.Check(dv.sv) {
			continue
		}
		if best == nil || dv.sv.GreaterThan(best.sv) {
			best = dv
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (f *DistroFamily) insert(v *DistroVersion) {
	f.Versions = append(f.Versions, v)
	sort.Slice(f.Versions, func(i, j int) bool {
		return f.Versions[i].sv.LessThan(f.Versions[j].sv)
	})
}

// DistroTree is the full set of discovered distro families, implementing
// solver.Families.
type DistroTree struct {
	Families map[string]*DistroFamily
	// byNameVersion supports direct lookup once a solver has chosen a
	// version, e.g. for alias/environment composition in flatconfig.go.
	byNameVersion map[string]*DistroVersion
}

// NewDistroTree returns an empty tree.
func NewDistroTree() *DistroTree {
	return &DistroTree{Families: map[string]*DistroFamily{}, byNameVersion: map[string]*DistroVersion{}}
}

// Lookup implements solver.Families.
func (t *DistroTree) Lookup(name string) (solver.Family, bool) {
	f, ok := t.Families[name]
	if !ok {
		return nil, false
	}
	return f, true
}

// Get returns the concrete version by name/version string, as chosen by a
// prior solver.Resolve call.
func (t *DistroTree) Get(name, version string) (*DistroVersion, bool) {
	v, ok := t.byNameVersion[name+"@"+version]
	return v, ok
}

func (t *DistroTree) addEager(d *distro.Descriptor) error {
	dv, err := newDistroVersion(d.Name, d.Version)
	if err != nil {
		return err
	}
	dv.descriptor = d
	t.add(dv)
	return nil
}

func (t *DistroTree) addLazy(lv *distro.LazyVersion) {
	sv, err := semver.NewVersion(lv.Version())
	if err != nil {
		// Unparsable identity-only version: skip silently; this version is
		// left out of the tree and cannot be picked by the solver.
		return
	}
	dv := &DistroVersion{
		NameValue:    lv.Name(),
		VersionValue: lv.Version(),
		sv:           sv,
		prerelease:   sv.Prerelease() != "",
		lazy:         lv,
	}
	t.add(dv)
}

func (t *DistroTree) add(dv *DistroVersion) {
	f, ok := t.Families[dv.NameValue]
	if !ok {
		f = &DistroFamily{NameValue: dv.NameValue}
		t.Families[dv.NameValue] = f
	}
	f.insert(dv)
	t.byNameVersion[dv.NameValue+"@"+dv.VersionValue] = dv
}

// BuildDistroTree enumerates every finder's locations and loads each
// descriptor eagerly. A finder whose Enumerate depends on the index cache
// rather than a live listing (S3Finder) returns an error here; its
// locations are supplied separately via AddFromCache once a cache.Index is
// available.
func BuildDistroTree(finders []distro.Finder, warnf func(format string, args ...interface{})) (*DistroTree, error) {
	tree := NewDistroTree()
	for _, finder := range finders {
		loadFinderInto(tree, finder, warnf)
	}
	return tree, nil
}

// loadFinderInto live-enumerates one finder's locations and loads each
// descriptor eagerly into tree.
func loadFinderInto(tree *DistroTree, finder distro.Finder, warnf func(format string, args ...interface{})) {
	locations, err := finder.Enumerate()
	if err != nil {
		if warnf != nil {
			warnf("finder enumeration unavailable, relying on cache: %v", err)
		}
		return
	}
	for _, loc := range locations {
		d, err := finder.LoadDescriptor(loc)
		if err != nil {
			if distro.IsIgnoredVersion(err) {
				continue
			}
			if warnf != nil {
				warnf("skipping distro descriptor at %s: %v", loc.Path, err)
			}
			continue
		}
		if err := tree.addEager(d); err != nil {
			if warnf != nil {
				warnf("skipping distro descriptor at %s: %v", loc.Path, err)
			}
		}
	}
}

// AddFromCache builds lazy version identities for cache entries belonging
// to a finder that could not enumerate itself (S3Finder): the
// `{distro}_v{version}` filename convention supplies name/version without
// any network access, deferring descriptor load (and thus sub-requirement
// discovery) until the solver actually picks this version.
func (t *DistroTree) AddFromCache(finder distro.Finder, root string, entries []cache.Entry) {
	for _, e := range entries {
		name, version, ok := distro.VersionFromFilename(strippedZipStem(e.Descriptor))
		if !ok {
			continue
		}
		loc := distro.Location{Root: root, Path: e.Descriptor, Cached: true}
		lv := distro.NewLazyVersion(name, version, finder, loc)
		t.addLazy(lv)
	}
}

func strippedZipStem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
