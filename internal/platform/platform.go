// Package platform implements the platform abstraction (component A): the
// current host platform, per-shell path separator rules, and translation of
// paths between platforms via named platform-path maps.
package platform

import (
	"path"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Platform identifies one of the three operating system families hab
// composes environments for.
type Platform string

const (
	Linux   Platform = "linux"
	OSX     Platform = "osx"
	Windows Platform = "windows"
)

// Current returns the platform hab is currently running on.
func Current() Platform {
	switch runtime.GOOS {
	case "windows":
		return Windows
	case "darwin":
		return OSX
	default:
		return Linux
	}
}

// DefaultExt returns the default shell script extension for the platform:
// ".bat" on Windows, empty (POSIX sh) elsewhere.
func (p Platform) DefaultExt() string {
	if p == Windows {
		return ".bat"
	}
	return ""
}

// bashLikeExts are script extensions that invoke a POSIX-flavored shell even
// when running on Windows (git-bash, WSL-launched scripts, etc).
var bashLikeExts = map[string]bool{
	"":    true,
	".sh": true,
}

// PathSep returns the path-list separator a given shell extension uses for
// a given environment variable name on this platform. PATH is special-cased
// on Windows-bash: it always uses ':' even though every other path-list
// variable on the same shell uses ';'.
func (p Platform) PathSep(shellExt string, varName string) byte {
	if p == Windows && bashLikeExts[shellExt] {
		if varName == "PATH" {
			return ':'
		}
		return ';'
	}
	if p == Windows {
		return ';'
	}
	return ':'
}

// ToPosix converts a native path string to forward-slash form.
func ToPosix(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// ToNative converts a forward-slash path to this platform's native
// separator form.
func (p Platform) ToNative(s string) string {
	if p == Windows {
		return strings.ReplaceAll(s, "/", `\`)
	}
	return s
}

// PathMapping is one named entry of a site's platform_path_maps table: the
// same logical location expressed per platform.
type PathMapping map[Platform]string

// Translate converts path `p`, expressed on platform `from`, into its
// equivalent on platform `to`, using `mappings` (the site's
// platform_path_maps). The matching rule: an exact match to
// the source prefix is replaced wholesale; a path relative to the source
// prefix has only its prefix portion replaced. Paths that match no mapping
// are returned unchanged.
func Translate(p string, from, to Platform, mappings map[string]PathMapping) string {
	posix := ToPosix(p)
	for _, mapping := range mappings {
		src, ok := mapping[from]
		if !ok {
			continue
		}
		srcPosix := ToPosix(src)
		dest, ok := mapping[to]
		if !ok {
			continue
		}
		destPosix := ToPosix(dest)

		if posix == srcPosix {
			return to.ToNative(destPosix)
		}
		if rel, ok := relativeTo(posix, srcPosix); ok {
			joined := path.Join(destPosix, rel)
			return to.ToNative(joined)
		}
	}
	return p
}

func relativeTo(p, prefix string) (string, bool) {
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(p, prefix+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, prefix+"/"), true
}

// Parse converts a platform name string (as read from a descriptor) into a
// Platform, erroring on anything unrecognized.
func Parse(name string) (Platform, error) {
	switch Platform(name) {
	case Linux, OSX, Windows:
		return Platform(name), nil
	default:
		return "", errors.Errorf("unknown platform %q", name)
	}
}
