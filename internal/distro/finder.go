// Package distro implements the distro finder abstraction: a single Finder
// interface with directory, archive-sidecar, archive-inline,
// remote-object-store and lazy variants.
package distro

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/loader"
	"github.com/hab-env/hab/internal/solver"
)

// RequirementsFromMap converts a descriptor's `distros` map (name -> version
// specifier string) into solver Requirements. Exported so the root hab
// package can build the same shape of Requirement for config descriptors.
func RequirementsFromMap(m map[string]string) (map[string]solver.Requirement, error) {
	return requirementsFromMap(m)
}

// requirementsFromMap converts a descriptor's `distros` map (name -> version
// specifier string) into solver Requirements.
func requirementsFromMap(m map[string]string) (map[string]solver.Requirement, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]solver.Requirement, len(m))
	for name, spec := range m {
		req, err := solver.NewRequirement(name, spec)
		if err != nil {
			return nil, err
		}
		out[name] = req
	}
	return out, nil
}

// Location identifies one discoverable distro descriptor.
type Location struct {
	Root   string // the finder's configured root
	Path   string // the descriptor's location (meaning depends on variant)
	Cached bool   // true if this location came from the index cache
}

// Descriptor is the parsed form of a distro descriptor file.
type Descriptor struct {
	Name         string
	Version      string
	Requirements map[string]solver.Requirement
	Environment  *loader.RawEnvironment
	Aliases      map[string][]loader.RawAliasEntry
	AliasMods    loader.RawAliasMods
	Location     Location
}

// Finder discovers and installs distros.
type Finder interface {
	// Enumerate yields every discoverable distro descriptor location
	// beneath this finder's root.
	Enumerate() ([]Location, error)
	// Content returns what to install from for loc: a directory or an
	// archive path.
	Content(loc Location) (string, error)
	// LoadDescriptor returns the parsed descriptor record at loc.
	LoadDescriptor(loc Location) (*Descriptor, error)
	// Install materializes the distro described by loc at dest, failing
	// with ErrInstallDestinationExists unless replace is set.
	Install(loc Location, dest string, replace bool) error
	// Installed reports whether dest already holds an installed distro.
	Installed(dest string) (bool, error)
	// ClearCache releases any in-memory (and, if persistent, on-disk)
	// caches this finder holds.
	ClearCache(persistent bool)
}

// ErrInstallDestinationExists is raised by Install when dest already exists
// and replace was not requested.
type ErrInstallDestinationExists struct {
	Dest string
}

func (e *ErrInstallDestinationExists) Error() string {
	return errors.Errorf("install destination already exists: %s", e.Dest).Error()
}

// ErrInvalidVersion is raised when no version-discovery fallback yields a
// value for a distro descriptor.
type ErrInvalidVersion struct {
	Path string
	Err  error
}

func (e *ErrInvalidVersion) Error() string {
	msg := "hab was unable to determine the version for \"" + e.Path + "\".\n" +
		"  The version is defined in one of several ways checked in this order:\n" +
		"  1. The version field in the distro descriptor.\n" +
		"  2. A version sidecar file next to the descriptor.\n" +
		"  3. The descriptor's parent directory name.\n" +
		"  4. SCM-derived version (tag/describe).\n"
	if e.Err != nil {
		return "[" + errors.Cause(e.Err).Error() + "] " + msg
	}
	return msg
}

// errIgnoredVersion is the internal "this directory is in the ignore list"
// signal; it is swallowed by callers and logged at debug, never surfaced
// as a resolve-time error.
type errIgnoredVersion struct{ dir string }

func (e errIgnoredVersion) Error() string { return "ignored distro directory: " + e.dir }

// IsIgnoredVersion reports whether err is the internal ignored-version
// signal.
func IsIgnoredVersion(err error) bool {
	_, ok := err.(errIgnoredVersion)
	return ok
}

const versionSidecarName = ".hab_version.txt"

// ResolveVersion implements the four-step version fallback chain:
// explicit field, sidecar file, parent directory name, SCM describe.
// descriptorDir is the directory containing the descriptor
// file. ignored is the site's ignored_distros set, matched against the
// base name of descriptorDir itself.
func ResolveVersion(descriptorDir string, explicit string, ignored map[string]bool) (string, error) {
	distroDirName := filepath.Base(descriptorDir)
	if ignored[distroDirName] {
		return "", errIgnoredVersion{dir: descriptorDir}
	}

	if explicit != "" {
		return explicit, nil
	}

	if data, err := os.ReadFile(filepath.Join(descriptorDir, versionSidecarName)); err == nil {
		v := strings.TrimSpace(string(data))
		if v != "" {
			return v, nil
		}
	}

	if distroDirName != "" && distroDirName != "." && distroDirName != string(filepath.Separator) {
		return distroDirName, nil
	}

	if v, err := scmVersion(descriptorDir); err == nil && v != "" {
		return v, nil
	}

	return "", &ErrInvalidVersion{Path: descriptorDir}
}

// scmVersion attempts to derive a version from version control metadata:
// the last tag in the list the repository Masterminds/vcs detects at dir
// reports.
func scmVersion(dir string) (string, error) {
	vcsType, err := vcs.DetectVcsFromFS(dir)
	if err != nil {
		return "", err
	}
	repo, err := vcs.NewRepo(dir, dir)
	if err != nil {
		return "", err
	}
	if vcsType != repo.Vcs() {
		return "", errors.Errorf("detected vcs %s does not match repo type %s", vcsType, repo.Vcs())
	}
	tags, err := repo.Tags()
	if err != nil || len(tags) == 0 {
		return "", errors.New("no tags found for scm-derived version")
	}
	return tags[len(tags)-1], nil
}
