// Package hab is the composition root: it loads a site, builds the config
// and distro forests, and exposes a Resolver that turns a URI into a fully
// composed FlatConfig. It also carries the error taxonomy and the freeze
// codec. Dependencies are passed explicitly; there is no package-level
// mutable state.
package hab

// Logger receives warnings emitted while loading a site or resolving a
// URI; the caller decides whether to surface them. A nil Logger silently
// drops warnings.
type Logger interface {
	Warnf(format string, args ...interface{})
}

// discardLogger is used when a Resolver is built without an explicit
// Logger.
type discardLogger struct{}

func (discardLogger) Warnf(string, ...interface{}) {}
