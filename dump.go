package hab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hab-env/hab/internal/envmerge"
)

// Dump renders a readable tree view of the site's resolved settings, gated
// by verbosity.
func (s *Site) Dump(verbosity int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dump of Site\n")
	fmt.Fprintf(&b, "  HAB_PATHS: %s\n", strings.Join(s.Paths, ", "))
	fmt.Fprintf(&b, "  config_paths: %s\n", strings.Join(s.ConfigPaths, ", "))
	fmt.Fprintf(&b, "  distro_paths: %s\n", strings.Join(s.DistroPaths, ", "))
	fmt.Fprintf(&b, "  platforms: %s\n", strings.Join(s.Platforms, ", "))
	if verbosity >= 1 {
		names := make([]string, 0, len(s.IgnoredDistros))
		for n := range s.IgnoredDistros {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, "  ignored_distros: %s\n", strings.Join(names, ", "))
		fmt.Fprintf(&b, "  prereleases: %v\n", s.Prereleases)
	}
	if verbosity >= 2 {
		fmt.Fprintf(&b, "  prefs_default: %s\n", s.PrefsDefault)
		fmt.Fprintf(&b, "  prefs_uri_timeout: %d\n", s.PrefsURITimeout)
		fmt.Fprintf(&b, "  entry_points: %d defined\n", len(s.EntryPoints))
	}
	return b.String()
}

// Dump renders a readable view of a resolved FlatConfig, grouping fields by
// the same verbosity gates the inheritance walker consults (properties in
// properties.go): resolved distros, then environment, then aliases.
func (fc *FlatConfig) Dump(verbosity int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dump of FlatConfig %s\n", fc.URI)
	fmt.Fprintf(&b, "  name: %s\n", fc.Name)
	fmt.Fprintf(&b, "  context: %s\n", strings.Join(fc.Context, "/"))

	if checkMinVerbosity(properties["distros"].MinVerbosity, &verbosity) {
		fmt.Fprintf(&b, "  distros:\n")
		for _, name := range fc.Distros {
			fmt.Fprintf(&b, "    %s == %s\n", name, fc.Versions[name].VersionString())
		}
	}

	if checkMinVerbosity(properties["environment"].MinVerbosity, &verbosity) {
		for _, plat := range sortedKeys(fc.Environment) {
			fmt.Fprintf(&b, "  environment[%s]:\n", plat)
			for _, name := range sortedResultKeys(fc.Environment[plat]) {
				v := fc.Environment[plat][name]
				if v.Unset {
					fmt.Fprintf(&b, "    %s: <unset>\n", name)
					continue
				}
				fmt.Fprintf(&b, "    %s: %s\n", name, strings.Join(v.Parts, ", "))
			}
		}
	}

	if checkMinVerbosity(properties["aliases"].MinVerbosity, &verbosity) {
		for _, plat := range sortedAliasKeys(fc.Aliases) {
			fmt.Fprintf(&b, "  aliases[%s]:\n", plat)
			names := make([]string, 0, len(fc.Aliases[plat]))
			for n := range fc.Aliases[plat] {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(&b, "    %s: %v\n", n, fc.Aliases[plat][n].Cmd)
			}
		}
	}

	return b.String()
}

// Dump renders every discovered distro family and its versions, oldest
// first within a family.
func (t *DistroTree) Dump(verbosity int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dump of DistroTree\n")
	names := make([]string, 0, len(t.Families))
	for n := range t.Families {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		f := t.Families[n]
		fmt.Fprintf(&b, "  %s:\n", n)
		for _, v := range f.Versions {
			fmt.Fprintf(&b, "    %s\n", v.VersionString())
			if verbosity >= 1 {
				if d, err := v.Descriptor(); err == nil && d.Location.Path != "" {
					fmt.Fprintf(&b, "      %s\n", d.Location.Path)
				}
			}
		}
	}
	return b.String()
}

func sortedKeys(m map[string]envmerge.Result) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedResultKeys(r envmerge.Result) []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedAliasKeys(m map[string]map[string]*Alias) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
