package hab

import (
	"sort"
	"strings"

	"github.com/hab-env/hab/internal/envmerge"
	"github.com/hab-env/hab/internal/forest"
	"github.com/hab-env/hab/internal/formatter"
	"github.com/hab-env/hab/internal/loader"
	"github.com/hab-env/hab/internal/platform"
	"github.com/hab-env/hab/internal/solver"
)

// FlatConfig is the fully composed, inheritance-resolved view for one URI.
type FlatConfig struct {
	URI     string
	Name    string
	Context []string

	Versions map[string]*DistroVersion // name -> solved version
	Distros  []string                  // solved distro names, sorted by name; dependency order is not kept

	// Environment is per-platform, per-variable, after the full
	// ancestor -> node -> default-fallback -> distros composition.
	Environment map[string]envmerge.Result

	// Aliases is per-platform alias name -> resolved alias.
	Aliases map[string]map[string]*Alias

	MinVerbosity int
}

// Alias looks up a named alias for a platform, returning InvalidAliasError
// when launch or script emission is asked for a name the flat
// configuration never defined.
func (fc *FlatConfig) Alias(platformName, name string) (*Alias, error) {
	byName, ok := fc.Aliases[platformName]
	if !ok {
		return nil, newInvalidAliasError(name, fc.URI)
	}
	a, ok := byName[name]
	if !ok {
		return nil, newInvalidAliasError(name, fc.URI)
	}
	if a.Cmd == nil {
		return nil, newHabError("Alias \"" + name + "\" does not have \"cmd\" defined")
	}
	return a, nil
}

// Alias is one resolved, launchable command.
type Alias struct {
	Name         string
	Cmd          interface{} // string or []string, pre-formatting
	Environment  envmerge.Result
	RelativeRoot string // the *defining* distro/config's relative_root

	// rawEnv is the alias's own (unmerged) environment ops, kept around so
	// composeAliases can re-apply them on top of a global-seeded merger
	// rather than on top of the already-finalized Environment above.
	rawEnv *loader.RawEnvironment
}

// aliasModEntry is one alias_mods contribution discovered during the
// inheritance/distro walk, kept with enough context to format `{relative_root}`
// against the *modifier's* own descriptor.
type aliasModEntry struct {
	ops          *loader.RawEnvironment
	relativeRoot string
}

// buildFlatConfig runs the full composition: for each override-style
// property (name, distros, variables, min_verbosity) the first value set
// along the node's chain and then the default chain, an ancestor -> node ->
// default-fallback accumulation for the merge-style properties
// (environment, alias_mods), a solver post-pass, and environment and alias
// composition over the solved distros in alphabetical name order (not in
// dependency order).
func (r *Resolver) buildFlatConfig(node *forest.Node, uri string) (*FlatConfig, error) {
	chain := chainFor(node)
	var defaultChain []*forest.Node
	// A node already living in the default tree is its own fallback; pulling
	// the default chain in again would apply the same operations twice.
	if node.Path()[0] != forest.DefaultRootName {
		defaultChain = r.defaultChainFor(uri)
	}

	fc := &FlatConfig{URI: uri}
	fc.Name, fc.Context = firstName(chain, defaultChain)

	variables := firstVariables(chain, defaultChain)
	if err := formatter.CheckReserved(variables); err != nil {
		return nil, wrapComponentError(err)
	}

	minVerbosity := firstMinVerbosity(chain, defaultChain)
	fc.MinVerbosity = minVerbosity

	topReqs := firstDistros(chain, defaultChain)
	optional := firstOptionalDistros(chain, defaultChain)
	for name := range optional {
		r.Omittable[name] = true
	}

	versions, err := r.solve(topReqs)
	if err != nil {
		return nil, err
	}
	fc.Versions = versions
	fc.Distros = sortedDistroNames(versions)

	fc.Environment = map[string]envmerge.Result{}
	fc.Aliases = map[string]map[string]*Alias{}

	aliasMods := map[string][]aliasModEntry{}
	collectAliasMods(chain, aliasMods)
	if len(defaultChain) > 0 {
		collectAliasMods(defaultChain, aliasMods)
	}
	for _, name := range fc.Distros {
		dv := versions[name]
		d, err := dv.Descriptor()
		if err != nil {
			return nil, err
		}
		for aliasName, ops := range d.AliasMods {
			aliasMods[aliasName] = append(aliasMods[aliasName], aliasModEntry{ops: ops, relativeRoot: d.Location.Path})
		}
	}

	for _, plat := range r.Site.Platforms {
		p, err := platform.Parse(plat)
		if err != nil {
			continue
		}

		merger := envmerge.New()
		scope := func(relRoot string) formatter.Scope {
			return formatter.Scope{RelativeRoot: relRoot, Variables: variables}
		}

		for i := len(chain) - 1; i >= 0; i-- {
			cn, ok := chain[i].Data.(*ConfigNode)
			if !ok || cn.Environment == nil {
				continue
			}
			if err := applyEnvironment(merger, cn.Environment, p, scope(cn.Dirname)); err != nil {
				return nil, wrapComponentError(err)
			}
		}
		for i := len(defaultChain) - 1; i >= 0; i-- {
			cn, ok := defaultChain[i].Data.(*ConfigNode)
			if !ok || cn.Environment == nil {
				continue
			}
			if err := applyEnvironment(merger, cn.Environment, p, scope(cn.Dirname)); err != nil {
				return nil, wrapComponentError(err)
			}
		}

		for _, name := range fc.Distros {
			dv := versions[name]
			d, err := dv.Descriptor()
			if err != nil {
				return nil, err
			}
			if d.Environment != nil {
				if err := applyEnvironment(merger, d.Environment, p, scope(d.Location.Path)); err != nil {
					return nil, wrapComponentError(err)
				}
			}
		}

		result := merger.Finalize()
		result["HAB_URI"] = &envmerge.Value{Parts: []string{uri}, Touched: true}
		fc.Environment[plat] = result

		aliases, err := r.composeAliases(versions, fc.Distros, plat, p, variables, aliasMods, result)
		if err != nil {
			return nil, err
		}
		fc.Aliases[plat] = aliases
	}

	return fc, nil
}

// chainFor returns node followed by its real ancestors, stopping after the
// first node (walking outward) whose own `inherits` is false.
func chainFor(node *forest.Node) []*forest.Node {
	chain := []*forest.Node{node}
	cur := node
	for {
		cn, ok := cur.Data.(*ConfigNode)
		inherits := !ok || cn.InheritsOr()
		if !inherits || cur.Parent == nil {
			return chain
		}
		chain = append(chain, cur.Parent)
		cur = cur.Parent
	}
}

// defaultChainFor locates the URI's corresponding node in the "default"
// tree and returns its own chain, used as the fallback source once the real
// ancestor chain is exhausted. The leading segment is
// the tree-root name and is not matched against the default tree's children.
func (r *Resolver) defaultChainFor(uri string) []*forest.Node {
	segs := strings.Split(strings.Trim(uri, "/"), "/")
	if len(segs) > 0 {
		segs = segs[1:]
	}
	def := r.ConfigForest.ClosestDefault(segs)
	if def == nil {
		return nil
	}
	return chainFor(def)
}

func firstName(chains ...[]*forest.Node) (string, []string) {
	for _, chain := range chains {
		for _, n := range chain {
			if cn, ok := n.Data.(*ConfigNode); ok && cn.Name != "" {
				return cn.Name, n.Path()[:len(n.Path())-1]
			}
		}
	}
	return "", nil
}

func firstVariables(chains ...[]*forest.Node) map[string]interface{} {
	for _, chain := range chains {
		for _, n := range chain {
			if cn, ok := n.Data.(*ConfigNode); ok && cn.Variables != nil {
				return cn.Variables
			}
		}
	}
	return nil
}

func firstMinVerbosity(chains ...[]*forest.Node) int {
	for _, chain := range chains {
		for _, n := range chain {
			if cn, ok := n.Data.(*ConfigNode); ok && cn.MinVerbosity != 0 {
				return cn.MinVerbosity
			}
		}
	}
	return 0
}

func firstDistros(chains ...[]*forest.Node) map[string]solver.Requirement {
	for _, chain := range chains {
		for _, n := range chain {
			if cn, ok := n.Data.(*ConfigNode); ok && cn.Distros != nil {
				return cn.Distros
			}
		}
	}
	return nil
}

func firstOptionalDistros(chains ...[]*forest.Node) map[string]bool {
	for _, chain := range chains {
		for _, n := range chain {
			if cn, ok := n.Data.(*ConfigNode); ok && cn.OptionalDistros != nil {
				return cn.OptionalDistros
			}
		}
	}
	return nil
}

func collectAliasMods(chain []*forest.Node, out map[string][]aliasModEntry) {
	for i := len(chain) - 1; i >= 0; i-- {
		cn, ok := chain[i].Data.(*ConfigNode)
		if !ok {
			continue
		}
		for name, ops := range cn.AliasMods {
			out[name] = append(out[name], aliasModEntry{ops: ops, relativeRoot: cn.Dirname})
		}
	}
}

func sortedDistroNames(versions map[string]*DistroVersion) []string {
	out := make([]string, 0, len(versions))
	for name := range versions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// opsForPlatform returns the ordered Ops blocks to apply for platform p:
// the wildcard block first, then the platform-specific block.
func opsForPlatform(env *loader.RawEnvironment, p platform.Platform) []envmerge.Ops {
	if !env.OSSpecific {
		if env.Agnostic == nil {
			return nil
		}
		return []envmerge.Ops{rawOpsToOps(*env.Agnostic)}
	}
	var out []envmerge.Ops
	if env.Wildcard != nil {
		out = append(out, rawOpsToOps(*env.Wildcard))
	}
	if specific, ok := env.PerOS[string(p)]; ok {
		out = append(out, rawOpsToOps(specific))
	}
	return out
}

func rawOpsToOps(raw loader.RawOps) envmerge.Ops {
	return envmerge.Ops{
		Unset:   raw.Unset,
		Set:     raw.Set,
		Prepend: raw.Prepend,
		Append:  raw.Append,
	}
}

func applyEnvironment(m *envmerge.Merger, env *loader.RawEnvironment, p platform.Platform, scope formatter.Scope) error {
	for _, ops := range opsForPlatform(env, p) {
		if err := m.Apply(ops, scope, formatter.ShellNone); err != nil {
			return err
		}
	}
	return nil
}

// composeAliases builds the final per-alias view for one platform: the
// first-defining distro in order (alphabetical by name) wins on a duplicate
// alias name, then every matching alias_mods overlay is applied in the
// order it was collected: config nodes (ancestor first, then the default
// fallback chain), then distros in alphabetical name order. Before
// either is applied, any key the alias's own environment or one of its
// alias_mods references is seeded from globalEnv (the platform's
// already-composed hab environment), so that key's first prepend/append
// combines with the global value instead of overwriting it.
func (r *Resolver) composeAliases(
	versions map[string]*DistroVersion,
	order []string,
	platName string,
	p platform.Platform,
	variables map[string]interface{},
	mods map[string][]aliasModEntry,
	globalEnv envmerge.Result,
) (map[string]*Alias, error) {
	aliases := map[string]*Alias{}

	for _, name := range order {
		dv := versions[name]
		d, err := dv.Descriptor()
		if err != nil {
			return nil, err
		}
		entries := aliasEntriesForPlatform(d.Aliases, p)
		for _, entry := range entries {
			if _, exists := aliases[entry.Name]; exists {
				continue
			}
			aliases[entry.Name] = aliasFromEntry(entry, d.Location.Path)
		}
	}

	for aliasName, alias := range aliases {
		entries := mods[aliasName]
		if alias.rawEnv == nil && len(entries) == 0 {
			continue
		}

		merger := envmerge.New()
		for key := range aliasReferencedKeys(alias.rawEnv, entries, p) {
			if gv, ok := globalEnv[key]; ok {
				merger.Seed(key, gv)
			}
		}

		scope := formatter.Scope{RelativeRoot: alias.RelativeRoot, Variables: variables}
		if alias.rawEnv != nil {
			if err := applyEnvironment(merger, alias.rawEnv, p, scope); err != nil {
				return nil, wrapComponentError(err)
			}
		}
		for _, mod := range entries {
			modScope := formatter.Scope{RelativeRoot: mod.relativeRoot, Variables: variables}
			if err := applyEnvironment(merger, mod.ops, p, modScope); err != nil {
				return nil, wrapComponentError(err)
			}
		}
		alias.Environment = merger.Finalize()
	}

	return aliases, nil
}

// aliasReferencedKeys collects every environment variable name the alias's
// own ops or any of its alias_mods touch for platform p, the set that
// needs a global-value seed considered for it.
func aliasReferencedKeys(env *loader.RawEnvironment, mods []aliasModEntry, p platform.Platform) map[string]bool {
	keys := map[string]bool{}
	if env != nil {
		collectOpsKeys(opsForPlatform(env, p), keys)
	}
	for _, mod := range mods {
		collectOpsKeys(opsForPlatform(mod.ops, p), keys)
	}
	return keys
}

func collectOpsKeys(opsList []envmerge.Ops, keys map[string]bool) {
	for _, ops := range opsList {
		for k := range ops.Set {
			keys[k] = true
		}
		for k := range ops.Prepend {
			keys[k] = true
		}
		for k := range ops.Append {
			keys[k] = true
		}
		for _, k := range ops.Unset {
			keys[k] = true
		}
	}
}

type aliasEntry struct {
	Name string
	Cmd  interface{}
	Env  *loader.RawEnvironment
}

// aliasEntriesForPlatform flattens a descriptor's `aliases` map (keyed by
// platform name or "*") for p, wildcard first so platform-specific entries
// can redefine a wildcard alias of the same name.
func aliasEntriesForPlatform(raw map[string][]loader.RawAliasEntry, p platform.Platform) []aliasEntry {
	seen := map[string]int{}
	var out []aliasEntry
	add := func(list []loader.RawAliasEntry) {
		for _, e := range list {
			cmd, env := splitAliasValue(e.Value)
			if idx, ok := seen[e.Name]; ok {
				out[idx] = aliasEntry{Name: e.Name, Cmd: cmd, Env: env}
				continue
			}
			seen[e.Name] = len(out)
			out = append(out, aliasEntry{Name: e.Name, Cmd: cmd, Env: env})
		}
	}
	add(raw["*"])
	add(raw[string(p)])
	return out
}

// splitAliasValue accepts either a bare command (string or list) or a dict
// with `cmd` and `environment` keys.
func splitAliasValue(v interface{}) (cmd interface{}, env *loader.RawEnvironment) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v, nil
	}
	cmd = m["cmd"]
	if raw, ok := m["environment"]; ok {
		if opsMap, ok := raw.(map[string]interface{}); ok {
			ops := envmerge.Ops{}
			if set, ok := opsMap["set"].(map[string]interface{}); ok {
				ops.Set = set
			}
			if app, ok := opsMap["append"].(map[string]interface{}); ok {
				ops.Append = app
			}
			if pre, ok := opsMap["prepend"].(map[string]interface{}); ok {
				ops.Prepend = pre
			}
			env = &loader.RawEnvironment{Agnostic: &loader.RawOps{Set: ops.Set, Append: ops.Append, Prepend: ops.Prepend}}
		}
	}
	return cmd, env
}

func aliasFromEntry(e aliasEntry, relativeRoot string) *Alias {
	a := &Alias{Name: e.Name, Cmd: e.Cmd, RelativeRoot: relativeRoot, rawEnv: e.Env}
	if e.Env != nil {
		m := envmerge.New()
		for _, ops := range opsForPlatform(e.Env, "") {
			_ = m.Apply(ops, formatter.Scope{RelativeRoot: relativeRoot}, formatter.ShellNone)
		}
		a.Environment = m.Finalize()
	}
	return a
}

// solve runs the version solver against topReqs, translating its errors
// into the §7 taxonomy and stamping every chosen version back into the
// DistroTree's own identity objects.
func (r *Resolver) solve(topReqs map[string]solver.Requirement) (map[string]*DistroVersion, error) {
	s := solver.New(r.Distros)
	s.Forced = r.Forced
	s.Omittable = r.Omittable
	s.Platform = string(r.Platform)
	s.Prereleases = r.Prereleases
	s.Log = solverLogAdapter{r.Log}

	resolved, err := s.Resolve(topReqs)
	if err != nil {
		return nil, wrapComponentError(err)
	}

	out := make(map[string]*DistroVersion, len(resolved))
	for name, v := range resolved {
		dv, ok := v.(*DistroVersion)
		if !ok {
			continue
		}
		out[name] = dv
	}
	return out, nil
}

type solverLogAdapter struct{ log Logger }

func (a solverLogAdapter) Warnf(format string, args ...interface{}) {
	if a.log != nil {
		a.log.Warnf(format, args...)
	}
}
