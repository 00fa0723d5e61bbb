package solver

import (
	"testing"

	"github.com/Masterminds/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVersion is a minimal solver.Version for tests that don't need a real
// distro descriptor.
type fakeVersion struct {
	name, version string
	sv            *semver.Version
	reqs          map[string]Requirement
}

func (v *fakeVersion) FamilyName() string    { return v.name }
func (v *fakeVersion) VersionString() string { return v.version }
func (v *fakeVersion) SemVer() *semver.Version { return v.sv }
func (v *fakeVersion) IsPrerelease() bool    { return v.sv.Prerelease() != "" }
func (v *fakeVersion) Requirements() (map[string]Requirement, error) {
	return v.reqs, nil
}

func newFakeVersion(t *testing.T, name, version string, reqs map[string]Requirement) *fakeVersion {
	t.Helper()
	sv, err := semver.NewVersion(version)
	require.NoError(t, err)
	return &fakeVersion{name: name, version: version, sv: sv, reqs: reqs}
}

type fakeFamily struct {
	versions []*fakeVersion
}

func (f *fakeFamily) Name() string { return f.versions[0].name }

func (f *fakeFamily) LatestVersion(c *semver.Constraints, prereleases bool) (Version, bool) {
	var best *fakeVersion
	for _, v := range f.versions {
		if v.IsPrerelease() && !prereleases {
			continue
		}
		if c != nil && !c.Check(v.sv) {
			continue
		}
		if best == nil || v.sv.GreaterThan(best.sv) {
			best = v
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

type fakeFamilies map[string]*fakeFamily

func (f fakeFamilies) Lookup(name string) (Family, bool) {
	fam, ok := f[name]
	return fam, ok
}

func req(t *testing.T, name, spec string) Requirement {
	t.Helper()
	r, err := NewRequirement(name, spec)
	require.NoError(t, err)
	return r
}

// the_dcc 1.2 pulls the_dcc_plugin_b>=1.0, which
// conflicts with the top-level requirement the_dcc_plugin_b==0.9 on the
// family's already-resolved sibling, forcing one restart; the_dcc==1.1
// satisfies a redirect-free requirements chain.
func TestSolverRedirectsOnSiblingConflict(t *testing.T) {
	pluginB09 := newFakeVersion(t, "the_dcc_plugin_b", "0.9.0", nil)
	pluginB10 := newFakeVersion(t, "the_dcc_plugin_b", "1.0.0", nil)

	dcc11 := newFakeVersion(t, "the_dcc", "1.1.0", nil)
	dcc12 := newFakeVersion(t, "the_dcc", "1.2.0", map[string]Requirement{
		"the_dcc_plugin_b": req(t, "the_dcc_plugin_b", ">=1.0"),
	})

	families := fakeFamilies{
		"the_dcc":          {versions: []*fakeVersion{dcc11, dcc12}},
		"the_dcc_plugin_b": {versions: []*fakeVersion{pluginB09, pluginB10}},
	}

	s := New(families)
	top := map[string]Requirement{
		"the_dcc":          req(t, "the_dcc", ">=1.0"),
		"the_dcc_plugin_b": req(t, "the_dcc_plugin_b", "=0.9"),
	}

	resolved, err := s.Resolve(top)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", resolved["the_dcc"].VersionString())
	assert.Equal(t, "0.9.0", resolved["the_dcc_plugin_b"].VersionString())
}

func TestSolverMaxRedirectError(t *testing.T) {
	// Same sibling-version-conflict shape as the redirect scenario above,
	// but with no restart budget: the single required restart must surface
	// as ErrMaxRedirect instead of being retried.
	pluginB09 := newFakeVersion(t, "the_dcc_plugin_b", "0.9.0", nil)
	pluginB10 := newFakeVersion(t, "the_dcc_plugin_b", "1.0.0", nil)
	dcc11 := newFakeVersion(t, "the_dcc", "1.1.0", nil)
	dcc12 := newFakeVersion(t, "the_dcc", "1.2.0", map[string]Requirement{
		"the_dcc_plugin_b": req(t, "the_dcc_plugin_b", ">=1.0"),
	})
	families := fakeFamilies{
		"the_dcc":          {versions: []*fakeVersion{dcc11, dcc12}},
		"the_dcc_plugin_b": {versions: []*fakeVersion{pluginB09, pluginB10}},
	}

	s := New(families)
	s.MaxRedirects = 0
	top := map[string]Requirement{
		"the_dcc":          req(t, "the_dcc", ">=1.0"),
		"the_dcc_plugin_b": req(t, "the_dcc_plugin_b", "=0.9"),
	}
	_, err := s.Resolve(top)
	require.Error(t, err)
	var maxErr *ErrMaxRedirect
	require.ErrorAs(t, err, &maxErr)
}

func TestOmittableDistroAbsenceSkippedWithoutError(t *testing.T) {
	families := fakeFamilies{}
	s := New(families)
	s.Omittable = map[string]bool{"missing_distro": true}
	top := map[string]Requirement{
		"missing_distro": req(t, "missing_distro", ">=1.0"),
	}
	resolved, err := s.Resolve(top)
	require.NoError(t, err)
	_, ok := resolved["missing_distro"]
	assert.False(t, ok)
}

func TestInvalidRequirementWhenFamilyMissing(t *testing.T) {
	families := fakeFamilies{}
	s := New(families)
	top := map[string]Requirement{
		"nope": req(t, "nope", ">=1.0"),
	}
	_, err := s.Resolve(top)
	require.Error(t, err)
	var invalid *ErrInvalidRequirement
	require.ErrorAs(t, err, &invalid)
}

func TestMarkerSkipsRequirementOnOtherPlatform(t *testing.T) {
	families := fakeFamilies{
		"winonly": {versions: []*fakeVersion{newFakeVersion(t, "winonly", "1.0.0", nil)}},
	}
	s := New(families)
	s.Platform = "linux"
	winReq := req(t, "winonly", ">=1.0")
	winReq.Marker = func(platform string) bool { return platform == "windows" }
	top := map[string]Requirement{"winonly": winReq}
	resolved, err := s.Resolve(top)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}
