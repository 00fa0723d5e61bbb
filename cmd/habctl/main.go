// Command habctl is a thin CLI wiring the hab core's Resolver and script
// emitter. It has no interactive prompting, colorized output,
// user-preferences file, or plugin loader, and no logging setup beyond a
// bare stderr logger. Actual subprocess launching of an alias's command is
// also left to the caller; habctl's contract ends at producing scripts and
// printing the resolved environment.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hab-env/hab"
	"github.com/hab-env/hab/internal/platform"
)

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	Register(*flag.FlagSet)
	Run(*hab.Resolver, []string) error
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	commands := []command{
		&activateCommand{},
		&envCommand{},
		&launchCommand{},
		&dumpCommand{},
		&clearCacheCommand{},
		&saveCacheCommand{},
	}

	global := flag.NewFlagSet("habctl", flag.ContinueOnError)
	sites := stringList{}
	global.Var(&sites, "site", "path to a site file (repeatable, most-authoritative first)")
	verbose := global.Bool("v", false, "enable verbose logging")

	usage := func() {
		fmt.Fprintln(os.Stderr, "Usage: habctl [-site path]... <command> [args]")
		fmt.Fprintln(os.Stderr, "Commands:")
		for _, cmd := range commands {
			fmt.Fprintf(os.Stderr, "  %-12s %-20s %s\n", cmd.Name(), cmd.Args(), cmd.ShortHelp())
		}
	}

	if len(args) == 0 {
		usage()
		return 1
	}

	// The global flags may appear before the subcommand name.
	cmdIdx := 0
	for cmdIdx < len(args) {
		if err := global.Parse(args[cmdIdx:]); err != nil {
			usage()
			return 1
		}
		rest := global.Args()
		if len(rest) == 0 {
			usage()
			return 1
		}
		cmdIdx = len(args) - len(rest)
		break
	}

	name := args[cmdIdx]
	var cmd command
	for _, c := range commands {
		if c.Name() == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "habctl: unknown command %q\n", name)
		usage()
		return 1
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.Register(fs)
	if err := fs.Parse(args[cmdIdx+1:]); err != nil {
		return 1
	}

	logger := cliLogger{verbose: *verbose}

	if len(sites) == 0 {
		if def := os.Getenv("HAB_PATH"); def != "" {
			sites = append(sites, def)
		}
	}
	if len(sites) == 0 {
		fmt.Fprintln(os.Stderr, "habctl: no -site given and HAB_PATH is unset")
		return 1
	}

	sitePaths := expandAll(sites)
	site, err := hab.LoadSite(sitePaths)
	if err != nil {
		fmt.Fprintln(os.Stderr, "habctl:", err)
		return 1
	}

	registry := newResolverRegistry()
	resolver, err := registry.Get(strings.Join(sitePaths, string(os.PathListSeparator)), func() (*hab.Resolver, error) {
		return hab.NewResolver(site, logger)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "habctl:", err)
		return 1
	}

	if err := cmd.Run(resolver, fs.Args()); err != nil {
		if ec, ok := err.(exitCoder); ok {
			return ec.ExitCode()
		}
		fmt.Fprintln(os.Stderr, "habctl:", err)
		return 1
	}
	return 0
}

// exitCoder lets the launch command propagate an alias's own exit code.
type exitCoder interface {
	ExitCode() int
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func expandAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			out[i] = p
			continue
		}
		out[i] = abs
	}
	return out
}

type cliLogger struct{ verbose bool }

func (l cliLogger) Warnf(format string, args ...interface{}) {
	if l.verbose {
		log.Printf("warning: "+format, args...)
	}
}

func platformFlag(fs *flag.FlagSet) *string {
	return fs.String("platform", string(platform.Current()), "target platform (linux/osx/windows)")
}

func extFlag(fs *flag.FlagSet, p string) *string {
	def := platform.Platform(p).DefaultExt()
	return fs.String("ext", def, "target shell extension (.sh/.bat/.cmd/.ps1/empty)")
}
