package distro

import "github.com/hab-env/hab/internal/solver"

// LazyVersion defers descriptor parsing until a non-identity attribute is
// accessed: name and version are available up front (from the finder's
// enumeration step, e.g. the `{distro}_v{version}` filename convention) so
// the solver can match requirements without any I/O.
type LazyVersion struct {
	NameValue    string
	VersionValue string
	Finder       Finder
	Location     Location

	loaded     bool
	descriptor *Descriptor
	loadErr    error
}

// NewLazyVersion returns a version identity without parsing its descriptor.
func NewLazyVersion(name, version string, finder Finder, loc Location) *LazyVersion {
	return &LazyVersion{NameValue: name, VersionValue: version, Finder: finder, Location: loc}
}

// Name and Version are identity attributes, available without I/O.
func (v *LazyVersion) Name() string    { return v.NameValue }
func (v *LazyVersion) Version() string { return v.VersionValue }

// ensureLoaded parses the descriptor exactly once, on first demand for any
// attribute beyond name/version. Single-threaded cooperative model: no
// locking required.
func (v *LazyVersion) ensureLoaded() (*Descriptor, error) {
	if v.loaded {
		return v.descriptor, v.loadErr
	}
	v.loaded = true
	v.descriptor, v.loadErr = v.Finder.LoadDescriptor(v.Location)
	return v.descriptor, v.loadErr
}

// Requirements triggers a load if needed and returns the descriptor's
// sub-requirements.
func (v *LazyVersion) Requirements() (map[string]solver.Requirement, error) {
	d, err := v.ensureLoaded()
	if err != nil {
		return nil, err
	}
	return d.Requirements, nil
}

// Descriptor triggers a load if needed and returns the full descriptor.
func (v *LazyVersion) Descriptor() (*Descriptor, error) {
	return v.ensureLoaded()
}
