// Package solver implements the version solver: recursive resolution of
// version requirements against a distro forest, with redirect/restart on
// sibling-version conflicts.
package solver

import (
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// DefaultMaxRedirects is the solver's default restart budget.
const DefaultMaxRedirects = 2

// Requirement is a name with a version constraint and an optional platform
// marker. Spec holds the constraint's source text; intersection re-parses
// the comma-joined specs.
type Requirement struct {
	Name       string
	Spec       string
	Constraint *semver.Constraints
	// Marker reports whether this requirement applies on the given
	// platform; nil means "always applies".
	Marker func(platform string) bool
}

// NewRequirement parses spec into a Requirement for name.
func NewRequirement(name, spec string) (Requirement, error) {
	c, err := semver.NewConstraint(spec)
	if err != nil {
		return Requirement{}, errors.Wrapf(err, "parsing version constraint %q for %s", spec, name)
	}
	return Requirement{Name: name, Spec: spec, Constraint: c}, nil
}

// Combine intersects two requirements' constraints for the same name,
// mirroring Solver.append_requirement's `specifier &= req.specifier`.
func Combine(a, b Requirement) (Requirement, error) {
	if a.Constraint == nil {
		return b, nil
	}
	if b.Constraint == nil {
		return a, nil
	}
	spec := a.Spec + "," + b.Spec
	c, err := semver.NewConstraint(spec)
	if err != nil {
		return Requirement{}, errors.Wrapf(err, "combining constraints %q and %q", a.Spec, b.Spec)
	}
	return Requirement{Name: a.Name, Spec: spec, Constraint: c, Marker: a.Marker}, nil
}

// Version is a concrete, resolvable distro version as seen by the solver.
type Version interface {
	FamilyName() string
	VersionString() string
	SemVer() *semver.Version
	IsPrerelease() bool
	// Requirements returns this version's own sub-requirements (its
	// `distros` field), keyed by name. Implementations backed by a lazy
	// descriptor load perform that load here.
	Requirements() (map[string]Requirement, error)
}

// Family looks up the best matching version for a constraint.
type Family interface {
	Name() string
	// LatestVersion returns the maximum version satisfying c, honoring
	// prereleases, or ok=false if none match.
	LatestVersion(c *semver.Constraints, prereleases bool) (v Version, ok bool)
}

// Families resolves a distro name to its Family.
type Families interface {
	Lookup(name string) (Family, bool)
}

// Logger receives solver warnings; nil is permitted (warnings dropped).
type Logger interface {
	Warnf(format string, args ...interface{})
}

// ErrInvalidRequirement is raised when a name has no family, or no version
// in the family matches the accumulated constraint.
type ErrInvalidRequirement struct {
	Name string
	Msg  string
}

func (e *ErrInvalidRequirement) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "no distro named " + e.Name + " satisfies the requested version constraint"
}

// ErrMaxRedirect is raised when the solver exceeds its restart budget.
type ErrMaxRedirect struct {
	MaxRedirects int
}

func (e *ErrMaxRedirect) Error() string {
	return "redirect limit reached: the solver restarted more than the configured maximum number of times"
}

// errRestart is the solver's internal restart signal; it never escapes
// Resolve.
type errRestart struct{}

func (errRestart) Error() string { return "solver: restart requested" }

// Solver resolves a set of top-level requirements into concrete versions.
type Solver struct {
	Families     Families
	Forced       map[string]Requirement
	Omittable    map[string]bool
	MaxRedirects int
	Platform     string
	Prereleases  bool
	Log          Logger
}

// New returns a Solver with MaxRedirects defaulted to DefaultMaxRedirects.
func New(families Families) *Solver {
	return &Solver{
		Families:     families,
		Forced:       map[string]Requirement{},
		Omittable:    map[string]bool{},
		MaxRedirects: DefaultMaxRedirects,
	}
}

func (s *Solver) warnf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Warnf(format, args...)
	}
}

// recordConflictAndRestart excludes badVersion from future consideration and
// returns errRestart to trigger a fresh solve attempt. The exclusion is
// applied to whichever family actually caused the conflict: if some ancestor
// version's own requirements introduced name, that ancestor's version is the
// real culprit and gets excluded instead of name itself, so the next attempt
// picks a different ancestor version rather than futilely re-excluding the
// same leaf.
func (s *Solver) recordConflictAndRestart(name, badVersion string, introducedBy map[string]introducer, invalid map[string]string) error {
	target := name
	exclVersion := badVersion
	if intro, ok := introducedBy[name]; ok {
		target = intro.family
		exclVersion = intro.version
	}

	exclSpec := "!=" + exclVersion
	if cur, ok := invalid[target]; ok {
		exclSpec = cur + "," + exclSpec
	}
	if _, err := semver.NewConstraint(exclSpec); err != nil {
		return errors.Wrap(err, "building exclusion constraint")
	}
	invalid[target] = exclSpec
	return errRestart{}
}

// introducer identifies the distro version whose own `distros` field first
// pulled in a requirement for a given name, so a later conflict on that name
// can exclude the version that actually caused it rather than the
// conflicting name itself.
type introducer struct {
	family  string
	version string
}

// Resolve performs the full recursive resolve-with-restart algorithm,
// returning the concrete version chosen for every name that participated
// (directly or transitively).
func (s *Solver) Resolve(requirements map[string]Requirement) (map[string]Version, error) {
	redirects := 0
	invalid := map[string]string{}

	for {
		versions := map[string]Version{}
		processed := map[string]bool{}
		reported := map[string]bool{}
		introducedBy := map[string]introducer{}

		err := s.resolve(requirements, map[string]Requirement{}, processed, reported, invalid, versions, introducedBy, introducer{})
		if err == nil {
			return versions, nil
		}
		if _, ok := err.(errRestart); ok {
			redirects++
			if redirects > s.MaxRedirects {
				return nil, &ErrMaxRedirect{MaxRedirects: s.MaxRedirects}
			}
			continue
		}
		return nil, err
	}
}

func (s *Solver) resolve(
	requirements map[string]Requirement,
	resolved map[string]Requirement,
	processed map[string]bool,
	reported map[string]bool,
	invalid map[string]string,
	versions map[string]Version,
	introducedBy map[string]introducer,
	via introducer,
) error {
	names := make([]string, 0, len(requirements))
	for n := range requirements {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		req := requirements[name]

		if req.Marker != nil && !req.Marker(s.Platform) {
			continue
		}

		if forced, ok := s.Forced[name]; ok {
			if !reported[name] {
				s.warnf("substituting forced requirement for %s", name)
				reported[name] = true
			}
			req = forced
		}

		if s.Omittable[name] {
			if _, ok := s.Families.Lookup(name); !ok {
				s.warnf("omitting absent optional distro %s", name)
				continue
			}
		}

		if via != (introducer{}) {
			if _, ok := introducedBy[name]; !ok {
				introducedBy[name] = via
			}
		}

		combined, err := Combine(resolved[name], req)
		if err != nil {
			return err
		}
		if excl, ok := invalid[name]; ok {
			exclReq, err := NewRequirement(name, excl)
			if err != nil {
				return err
			}
			combined, err = Combine(combined, exclReq)
			if err != nil {
				return err
			}
		}
		resolved[name] = combined

		family, ok := s.Families.Lookup(name)
		if !ok {
			return &ErrInvalidRequirement{Name: name, Msg: "no distro family named " + name}
		}
		version, ok := family.LatestVersion(combined.Constraint, s.Prereleases)
		if !ok {
			// The combined (all-history) constraint is unsatisfiable. If
			// this name was already picked via a different branch and its
			// own fresh requirement is satisfiable on its own, the real
			// culprit is whichever version introduced the conflicting
			// history, not this requirement itself: exclude that version
			// and restart rather than failing the whole solve outright.
			if prev, ok := versions[name]; ok {
				if _, standalone := family.LatestVersion(req.Constraint, s.Prereleases); standalone {
					return s.recordConflictAndRestart(name, prev.VersionString(), introducedBy, invalid)
				}
			}
			return &ErrInvalidRequirement{Name: name, Msg: "no version of " + name + " satisfies the requested constraint"}
		}

		key := name + "@" + version.VersionString()

		if prev, ok := versions[name]; ok && prev.VersionString() != version.VersionString() {
			return s.recordConflictAndRestart(name, prev.VersionString(), introducedBy, invalid)
		}

		versions[name] = version

		if !processed[key] {
			processed[key] = true
			subReqs, err := version.Requirements()
			if err != nil {
				return err
			}
			if len(subReqs) > 0 {
				if err := s.resolve(subReqs, resolved, processed, reported, invalid, versions, introducedBy, introducer{family: name, version: version.VersionString()}); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
