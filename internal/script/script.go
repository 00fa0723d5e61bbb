// Package script implements the shell-agnostic script emitter: given a
// flat configuration, a target directory and an extension, it renders the
// activation script, the launch bootstrapper, and (for shells that can't
// define inline function-like aliases) one script per alias. Four shell
// dialects with escaping rules is exactly the data/logic split
// text/template exists for, so the scripts are templated rather than
// hand-concatenated.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/hab-env/hab/internal/formatter"
	"github.com/hab-env/hab/internal/platform"
)

// FlatConfig is the minimal view of hab.FlatConfig this package depends on,
// kept narrow to avoid an import cycle with the root package (which
// imports internal/script).
type FlatConfig interface {
	URIValue() string
	EnvironmentFor(platformName string) map[string]Value
	AliasesFor(platformName string) map[string]Alias
	Freeze() (string, error)
}

// Value is one resolved environment variable: Unset means remove it from
// the inherited environment, otherwise Parts (already shell-delayed
// tokens) are joined with the variable's path separator.
type Value struct {
	Parts []string
	Unset bool
}

// Alias is one resolved, launchable alias.
type Alias struct {
	Cmd         interface{}
	Environment map[string]Value
}

// setAssignment is one line of the rendered hab_config script.
type setAssignment struct {
	Name  string
	Value string
}

type unsetName struct{ Name string }

type aliasDef struct {
	Name    string
	Command string
	Script  string // populated only for per-file alias variants (batch)
	Shell   string
}

type configScriptData struct {
	URI     string
	Freeze  string
	Unsets  []unsetName
	Sets    []setAssignment
	Aliases []aliasDef
	PerFile bool
	Shell   string
}

type launchScriptData struct {
	URI       string
	ConfigRel string
	Shell     string
	Alias     string
	Args      string
	StayOpen  bool
}

// Emit renders hab_config<ext>, hab_launch<ext> and (for per-file alias
// shells) aliases/<name><ext> into dir, for cfg's platformName view.
// alias names the command hab_launch<ext> should invoke
// with args appended and its exit code propagated; alias == "" renders a
// plain activation bootstrapper that only sources hab_config (the
// "activate"/"env" operations never name an alias).
func Emit(cfg FlatConfig, platformName, dir, ext, alias string, args []string) error {
	plat, err := platform.Parse(platformName)
	if err != nil {
		return err
	}
	shell := formatter.LanguageFromExt(ext, plat == platform.Windows)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	freeze, err := cfg.Freeze()
	if err != nil {
		return err
	}

	data := configScriptData{
		URI:     cfg.URIValue(),
		Freeze:  freeze,
		PerFile: perFileAliasShell(shell),
		Shell:   string(shell),
	}

	env := cfg.EnvironmentFor(platformName)
	for _, name := range sortedValueKeys(env) {
		v := env[name]
		if v.Unset {
			data.Unsets = append(data.Unsets, unsetName{Name: name})
			continue
		}
		data.Sets = append(data.Sets, setAssignment{
			Name:  name,
			Value: joinValue(v.Parts, plat, shell, name),
		})
	}

	aliases := cfg.AliasesFor(platformName)
	for _, name := range sortedAliasKeys(aliases) {
		a := aliases[name]
		cmd := renderCommand(a.Cmd, plat, shell)
		def := aliasDef{Name: name, Command: cmd, Shell: string(shell)}
		if data.PerFile {
			def.Script = "aliases" + string(filepath.Separator) + name + ext
		}
		data.Aliases = append(data.Aliases, def)
	}

	configPath := filepath.Join(dir, "hab_config"+ext)
	if err := renderToFile(configPath, configTemplate(), data); err != nil {
		return err
	}

	if data.PerFile {
		aliasDir := filepath.Join(dir, "aliases")
		if err := os.MkdirAll(aliasDir, 0o755); err != nil {
			return err
		}
		for _, a := range data.Aliases {
			p := filepath.Join(dir, a.Script)
			if err := renderToFile(p, aliasFileTemplate(), a); err != nil {
				return err
			}
		}
	}

	launch := launchScriptData{
		URI:       cfg.URIValue(),
		ConfigRel: "hab_config" + ext,
		Shell:     string(shell),
		Alias:     alias,
		StayOpen:  shell == formatter.ShellPS,
	}
	if alias != "" {
		argParts := make([]string, len(args))
		for i, a := range args {
			argParts[i] = quoteForShell(a, shell)
		}
		launch.Args = strings.Join(argParts, " ")
	}
	launchPath := filepath.Join(dir, "hab_launch"+ext)
	return renderToFile(launchPath, launchTemplate(), launch)
}

// perFileAliasShell reports whether this shell dialect cannot define
// complex function-like aliases inline, requiring one script file per
// alias.
func perFileAliasShell(shell formatter.Shell) bool {
	return shell == formatter.ShellBatch
}

func renderToFile(path string, tmpl *template.Template, data interface{}) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

func sortedValueKeys(m map[string]Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedAliasKeys(m map[string]Alias) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// joinValue resolves any remaining delayed tokens ({;}, {key!e}) against
// the real target shell, then joins with the variable's path separator
// (the PATH/Windows-bash special case applies per-variable).
func joinValue(parts []string, plat platform.Platform, shell formatter.Shell, varName string) string {
	resolved := make([]string, len(parts))
	for i, p := range parts {
		f, err := formatter.Format(p, formatter.Scope{}, shell, false)
		if err != nil {
			resolved[i] = p
			continue
		}
		resolved[i] = quoteForShell(fmt.Sprint(f), shell)
	}
	sep := string(plat.PathSep(shellExtFor(shell), varName))
	return strings.Join(resolved, sep)
}

func shellExtFor(shell formatter.Shell) string {
	switch shell {
	case formatter.ShellBatch:
		return ".bat"
	case formatter.ShellPS:
		return ".ps1"
	default:
		return ""
	}
}

// quoteForShell applies the per-dialect escape rules: Powershell escapes
// spaces with a backtick-space; POSIX and command-processor dialects quote
// list items containing spaces.
func quoteForShell(s string, shell formatter.Shell) string {
	if !strings.Contains(s, " ") {
		return s
	}
	if shell == formatter.ShellPS {
		return strings.ReplaceAll(s, " ", "` ")
	}
	return `"` + s + `"`
}

// renderCommand formats an alias's cmd (string or list) into one
// invocable command line for shell, applying the same join/escape rules
// as joinValue.
func renderCommand(cmd interface{}, plat platform.Platform, shell formatter.Shell) string {
	switch v := cmd.(type) {
	case string:
		return quoteForShell(v, shell)
	case []interface{}:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = quoteForShell(fmt.Sprint(e), shell)
		}
		return strings.Join(parts, " ")
	case []string:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = quoteForShell(e, shell)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(v)
	}
}
