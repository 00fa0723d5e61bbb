// Package formatter implements the value formatter (component B): {var},
// {VAR!e} and {;} token interpolation across strings, lists and maps, with
// shell-specific environment-variable reference syntax.
package formatter

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Shell identifies a target shell dialect for env-var reference syntax.
// The zero value, ShellNone, produces the "delayed" form used when no
// concrete shell has been chosen yet (e.g. while composing, before emission).
type Shell string

const (
	ShellNone  Shell = ""
	ShellBatch Shell = "batch"
	ShellPS    Shell = "ps"
	ShellSh    Shell = "sh"
	ShellWin   Shell = "shwin"
)

// LanguageFromExt maps a script file extension to a Shell, mirroring
// Formatter.language_from_ext: ".bat"/".cmd" -> batch, ".ps1" -> ps, ".sh"
// (or empty, POSIX default) -> sh or shwin depending on the host platform.
func LanguageFromExt(ext string, hostIsWindows bool) Shell {
	switch ext {
	case ".bat", ".cmd":
		return ShellBatch
	case ".ps1":
		return ShellPS
	case ".sh", "":
		if hostIsWindows {
			return ShellWin
		}
		return ShellSh
	default:
		return Shell(ext)
	}
}

// envVarFormat returns the printf-style template used to build an
// environment-variable reference for this shell; %s is replaced with the
// variable name.
func (s Shell) envVarFormat() string {
	switch s {
	case ShellBatch:
		return "%%%s%%"
	case ShellPS:
		return "$env:%s"
	case ShellSh, ShellWin:
		return "$%s"
	default:
		// Delayed form: still a formattable token, re-parsed once a shell
		// is finally chosen.
		return "{%s!e}"
	}
}

// pathsep returns the path-list separator token for this shell, or the
// delayed form if no shell has been chosen yet. Bash uses ':' even on
// windows; the native windows shells use ';'.
func (s Shell) pathsep() string {
	switch s {
	case ShellSh, ShellWin:
		return ":"
	case ShellBatch, ShellPS:
		return ";"
	default:
		return "{;}"
	}
}

// EnvVarRef renders a reference to environment variable name for this shell.
func (s Shell) EnvVarRef(name string) string {
	return fmt.Sprintf(s.envVarFormat(), name)
}

const (
	reservedRelativeRoot = "relative_root"
	reservedPathsep      = ";"
)

// ErrReservedVariableName is returned when a user-supplied variables map
// declares a name reserved for interpolation machinery.
type ErrReservedVariableName struct {
	Name string
}

func (e *ErrReservedVariableName) Error() string {
	return errors.Errorf("variable name %q is reserved and cannot be set by user config", e.Name).Error()
}

// Scope is the variable lookup used while formatting. It always implicitly
// carries relative_root; process environment variables are consulted as a
// fallback, matching Formatter.get_field's `os.environ` fallback.
type Scope struct {
	RelativeRoot string
	Variables    map[string]interface{}
}

// CheckReserved validates a user-declared variables map, failing if it uses
// a reserved interpolation name.
func CheckReserved(vars map[string]interface{}) error {
	for k := range vars {
		if k == reservedRelativeRoot || k == reservedPathsep {
			return &ErrReservedVariableName{Name: k}
		}
	}
	return nil
}

func (sc Scope) lookup(name string) (interface{}, bool) {
	if name == reservedRelativeRoot {
		return sc.RelativeRoot, true
	}
	if sc.Variables != nil {
		if v, ok := sc.Variables[name]; ok {
			return v, true
		}
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	return nil, false
}

// Format interpolates value (string/[]interface{}/map[string]interface{}/
// scalar) against scope for the given target shell. expand controls whether
// {VAR!e} resolves to the VAR's live process-environment value (when set)
// instead of a shell reference.
func Format(value interface{}, scope Scope, target Shell, expand bool) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return formatString(v, scope, target, expand)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			f, err := Format(e, scope, target, expand)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			f, err := Format(e, scope, target, expand)
			if err != nil {
				return nil, err
			}
			out[k] = f
		}
		return out, nil
	default:
		// numbers, bools, nil pass through unchanged.
		return value, nil
	}
}

// formatString scans for {key}, {key!e} and {;} tokens, mirroring
// Formatter.parse/get_field.
func formatString(s string, scope Scope, target Shell, expand bool) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '{' {
			if i+1 < len(s) && s[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i:], '}')
			if end == -1 {
				return "", errors.Errorf("unterminated interpolation token in %q", s)
			}
			token := s[i+1 : i+end]
			i += end + 1

			if token == reservedPathsep {
				out.WriteString(target.pathsep())
				continue
			}
			name := token
			conv := ""
			if idx := strings.LastIndex(token, "!"); idx != -1 {
				name, conv = token[:idx], token[idx+1:]
			}
			if conv == "e" {
				if expand {
					if val, ok := scope.lookup(name); ok {
						out.WriteString(toStr(val))
						continue
					}
				}
				out.WriteString(target.EnvVarRef(name))
				continue
			}
			val, ok := scope.lookup(name)
			if !ok {
				return "", errors.Errorf("unresolved interpolation variable %q in %q", name, s)
			}
			out.WriteString(toStr(val))
			continue
		}
		if c == '}' && i+1 < len(s) && s[i+1] == '}' {
			out.WriteByte('}')
			i += 2
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String(), nil
}

func toStr(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		if t {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(t)
	}
}
