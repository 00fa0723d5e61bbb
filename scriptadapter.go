package hab

import "github.com/hab-env/hab/internal/script"

// scriptConfig adapts a *FlatConfig to internal/script.FlatConfig, keeping
// the script package's interface narrow (and import-cycle-free) while the
// root package owns the actual composed data.
type scriptConfig struct{ fc *FlatConfig }

// AsScriptConfig wraps fc for use with internal/script.Emit.
func (fc *FlatConfig) AsScriptConfig() script.FlatConfig { return scriptConfig{fc: fc} }

func (s scriptConfig) URIValue() string { return s.fc.URI }

func (s scriptConfig) EnvironmentFor(platformName string) map[string]script.Value {
	result, ok := s.fc.Environment[platformName]
	if !ok {
		return nil
	}
	out := make(map[string]script.Value, len(result))
	for name, v := range result {
		out[name] = script.Value{Parts: v.Parts, Unset: v.Unset}
	}
	return out
}

func (s scriptConfig) AliasesFor(platformName string) map[string]script.Alias {
	aliases, ok := s.fc.Aliases[platformName]
	if !ok {
		return nil
	}
	out := make(map[string]script.Alias, len(aliases))
	for name, a := range aliases {
		sa := script.Alias{Cmd: a.Cmd}
		if a.Environment != nil {
			env := make(map[string]script.Value, len(a.Environment))
			for k, v := range a.Environment {
				env[k] = script.Value{Parts: v.Parts, Unset: v.Unset}
			}
			sa.Environment = env
		}
		out[name] = sa
	}
	return out
}

func (s scriptConfig) Freeze() (string, error) {
	return EncodeFreeze(s.fc.Freeze())
}

// Emit renders the activation/launch/alias scripts for platformName into
// dir with extension ext; a thin pass-through to
// internal/script.Emit via the adapter above. alias/args are forwarded to
// hab_launch<ext> so it invokes that alias with args appended and
// propagates its exit code; pass "" and nil for a plain activation emit.
func (fc *FlatConfig) Emit(platformName, dir, ext, alias string, args []string) error {
	return script.Emit(fc.AsScriptConfig(), platformName, dir, ext, alias, args)
}
