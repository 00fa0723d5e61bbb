package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hab-env/hab"
)

// activateCommand emits scripts that update the *current* shell in place.
type activateCommand struct {
	platform *string
	ext      *string
	dir      *string
}

func (c *activateCommand) Name() string      { return "activate" }
func (c *activateCommand) Args() string      { return "<uri>" }
func (c *activateCommand) ShortHelp() string { return "emit scripts that activate uri in the current shell" }

func (c *activateCommand) Register(fs *flag.FlagSet) {
	c.platform = platformFlag(fs)
	c.ext = extFlag(fs, *c.platform)
	c.dir = fs.String("dir", ".", "directory to write scripts into")
}

func (c *activateCommand) Run(r *hab.Resolver, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("activate requires exactly one uri argument")
	}
	fc, err := r.Resolve(args[0])
	if err != nil {
		return err
	}
	return fc.Emit(*c.platform, *c.dir, *c.ext, "", nil)
}

// envCommand emits scripts that spawn a *new* shell with the environment
// active. The core's contract is identical to activate
// (same scripts); the distinction between "update current shell" and
// "spawn a new one" is a front-end concern about how the caller sources
// the emitted script, not something the emitter itself varies.
type envCommand struct {
	platform *string
	ext      *string
	dir      *string
}

func (c *envCommand) Name() string      { return "env" }
func (c *envCommand) Args() string      { return "<uri>" }
func (c *envCommand) ShortHelp() string { return "emit scripts that spawn a new shell with uri active" }

func (c *envCommand) Register(fs *flag.FlagSet) {
	c.platform = platformFlag(fs)
	c.ext = extFlag(fs, *c.platform)
	c.dir = fs.String("dir", ".", "directory to write scripts into")
}

func (c *envCommand) Run(r *hab.Resolver, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("env requires exactly one uri argument")
	}
	fc, err := r.Resolve(args[0])
	if err != nil {
		return err
	}
	return fc.Emit(*c.platform, *c.dir, *c.ext, "", nil)
}

// launchCommand emits scripts that run one alias, reporting InvalidAlias
// immediately rather than deferring the failure to the emitted script.
// Any arguments after the alias name are appended to
// the alias's own invocation in the emitted hab_launch<ext>.
type launchCommand struct {
	platform *string
	ext      *string
	dir      *string
}

func (c *launchCommand) Name() string      { return "launch" }
func (c *launchCommand) Args() string      { return "<uri> <alias> [args...]" }
func (c *launchCommand) ShortHelp() string { return "emit scripts that launch a single alias" }

func (c *launchCommand) Register(fs *flag.FlagSet) {
	c.platform = platformFlag(fs)
	c.ext = extFlag(fs, *c.platform)
	c.dir = fs.String("dir", ".", "directory to write scripts into")
}

func (c *launchCommand) Run(r *hab.Resolver, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("launch requires a uri and an alias argument")
	}
	fc, err := r.Resolve(args[0])
	if err != nil {
		return err
	}
	if _, err := fc.Alias(*c.platform, args[1]); err != nil {
		return err
	}
	return fc.Emit(*c.platform, *c.dir, *c.ext, args[1], args[2:])
}

// dumpCommand renders the resolved site or a uri's flat configuration.
type dumpCommand struct {
	verbosity *int
	what      *string
}

func (c *dumpCommand) Name() string      { return "dump" }
func (c *dumpCommand) Args() string      { return "[uri]" }
func (c *dumpCommand) ShortHelp() string { return "print the resolved site or a uri's flat config" }

func (c *dumpCommand) Register(fs *flag.FlagSet) {
	c.verbosity = fs.Int("verbosity", 0, "verbosity level gating which fields are shown")
	c.what = fs.String("what", "config", "what to dump: site|distros|config")
}

func (c *dumpCommand) Run(r *hab.Resolver, args []string) error {
	switch {
	case *c.what == "site":
		fmt.Fprint(os.Stdout, r.Site.Dump(*c.verbosity))
	case *c.what == "distros":
		fmt.Fprint(os.Stdout, r.Distros.Dump(*c.verbosity))
	case len(args) == 0:
		fmt.Fprint(os.Stdout, r.Site.Dump(*c.verbosity))
	default:
		fc, err := r.Resolve(args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, fc.Dump(*c.verbosity))
	}
	return nil
}

// clearCacheCommand releases every finder's in-memory (and optionally
// on-disk) index cache.
type clearCacheCommand struct {
	persistent *bool
}

func (c *clearCacheCommand) Name() string      { return "clear-cache" }
func (c *clearCacheCommand) Args() string      { return "" }
func (c *clearCacheCommand) ShortHelp() string { return "clear in-memory (and optionally on-disk) finder caches" }

func (c *clearCacheCommand) Register(fs *flag.FlagSet) {
	c.persistent = fs.Bool("persistent", false, "also remove the on-disk cache files")
}

func (c *clearCacheCommand) Run(r *hab.Resolver, args []string) error {
	r.ClearCaches(*c.persistent)
	return nil
}

// saveCacheCommand (re)generates every site file's on-disk index cache from
// a live scan of its own config_paths/distro_paths.
type saveCacheCommand struct{}

func (c *saveCacheCommand) Name() string      { return "save-cache" }
func (c *saveCacheCommand) Args() string      { return "" }
func (c *saveCacheCommand) ShortHelp() string { return "regenerate the on-disk index cache for every site file" }

func (c *saveCacheCommand) Register(fs *flag.FlagSet) {}

func (c *saveCacheCommand) Run(r *hab.Resolver, args []string) error {
	return r.SaveCache()
}
