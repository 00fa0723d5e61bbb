package distro

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/hab-env/hab/internal/loader"
)

// versionFromFilename matches the `{distro}_v{version}` naming convention
// used by archive-backed distros.
var versionFromFilename = regexp.MustCompile(`^(?P<name>.+)_v(?P<version>.+)$`)

func versionForStem(stem string) (name, version string, ok bool) {
	m := versionFromFilename.FindStringSubmatch(stem)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// VersionFromFilename exposes the `{distro}_v{version}` filename convention
// to callers outside this package (the root hab package uses it to build
// lazy version identities straight from cache entries without any I/O).
func VersionFromFilename(stem string) (name, version string, ok bool) {
	return versionForStem(stem)
}

// ArchiveSidecarFinder pairs a descriptor.json with a same-stemmed archive
// file; Content resolves to the archive, Install extracts it.
type ArchiveSidecarFinder struct {
	Root       string
	Ignored    map[string]bool
	ArchiveExt string // e.g. ".zip"
}

func NewArchiveSidecarFinder(root string, ignored map[string]bool) *ArchiveSidecarFinder {
	return &ArchiveSidecarFinder{Root: root, Ignored: ignored, ArchiveExt: ".zip"}
}

func (f *ArchiveSidecarFinder) Enumerate() ([]Location, error) {
	entries, err := os.ReadDir(f.Root)
	if err != nil {
		return nil, err
	}
	var out []Location
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".descriptor.json") {
			continue
		}
		out = append(out, Location{Root: f.Root, Path: filepath.Join(f.Root, e.Name())})
	}
	return out, nil
}

func (f *ArchiveSidecarFinder) sidecarStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".descriptor.json")
}

func (f *ArchiveSidecarFinder) Content(loc Location) (string, error) {
	return filepath.Join(filepath.Dir(loc.Path), f.sidecarStem(loc.Path)+f.ArchiveExt), nil
}

func (f *ArchiveSidecarFinder) LoadDescriptor(loc Location) (*Descriptor, error) {
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		return nil, err
	}
	var raw loader.RawDistro
	if err := loader.LoadJSON(data, &raw); err != nil {
		return nil, err
	}
	stem := f.sidecarStem(loc.Path)
	explicit := raw.Version
	if explicit == "" {
		if _, v, ok := versionForStem(stem); ok {
			explicit = v
		}
	}
	version, err := ResolveVersion(filepath.Dir(loc.Path), explicit, f.Ignored)
	if err != nil {
		return nil, err
	}
	return descriptorFromRaw(raw, version, loc)
}

func (f *ArchiveSidecarFinder) Install(loc Location, dest string, replace bool) error {
	installed, err := f.Installed(dest)
	if err != nil {
		return err
	}
	if installed {
		if !replace {
			return &ErrInstallDestinationExists{Dest: dest}
		}
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}
	archivePath, err := f.Content(loc)
	if err != nil {
		return err
	}
	return extractZip(archivePath, dest)
}

func (f *ArchiveSidecarFinder) Installed(dest string) (bool, error) {
	_, err := os.Stat(filepath.Join(dest, DescriptorFilename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *ArchiveSidecarFinder) ClearCache(persistent bool) {}

func extractZip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, zf := range r.File {
		target := filepath.Join(dest, zf.Name)
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// ArchiveInlineFinder expects each `*.zip` to contain its own descriptor
// file at a fixed member name, so a single file is both the enumeration
// match and the install source.
type ArchiveInlineFinder struct {
	Root             string
	Ignored          map[string]bool
	DescriptorMember string // fixed member name inside each archive

	mu    sync.Mutex
	cache map[string][]byte // memberPath -> bytes
}

func NewArchiveInlineFinder(root string, ignored map[string]bool) *ArchiveInlineFinder {
	return &ArchiveInlineFinder{
		Root:             root,
		Ignored:          ignored,
		DescriptorMember: DescriptorFilename,
		cache:            map[string][]byte{},
	}
}

func (f *ArchiveInlineFinder) Enumerate() ([]Location, error) {
	entries, err := os.ReadDir(f.Root)
	if err != nil {
		return nil, err
	}
	var out []Location
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		out = append(out, Location{Root: f.Root, Path: filepath.Join(f.Root, e.Name())})
	}
	return out, nil
}

func (f *ArchiveInlineFinder) Content(loc Location) (string, error) {
	return loc.Path, nil
}

// memberPath returns the "member path" addressing a file inside an
// archive: the archive's own path joined with the internal member name.
func memberPath(archivePath, member string) string {
	return fmt.Sprintf("%s/%s", archivePath, member)
}

func (f *ArchiveInlineFinder) getFileData(archivePath, member string) ([]byte, error) {
	key := memberPath(archivePath, member)
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.cache[key]; ok {
		return data, nil
	}
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for _, zf := range r.File {
		if zf.Name != member {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		f.cache[key] = data
		return data, nil
	}
	return nil, fmt.Errorf("member %q not found in %s", member, archivePath)
}

func (f *ArchiveInlineFinder) LoadDescriptor(loc Location) (*Descriptor, error) {
	data, err := f.getFileData(loc.Path, f.DescriptorMember)
	if err != nil {
		return nil, err
	}
	var raw loader.RawDistro
	if err := loader.LoadJSON(data, &raw); err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(loc.Path), ".zip")
	explicit := raw.Version
	if explicit == "" {
		if _, v, ok := versionForStem(stem); ok {
			explicit = v
		}
	}
	version, err := ResolveVersion(filepath.Dir(loc.Path), explicit, f.Ignored)
	if err != nil {
		return nil, err
	}
	return descriptorFromRaw(raw, version, loc)
}

func (f *ArchiveInlineFinder) Install(loc Location, dest string, replace bool) error {
	installed, err := f.Installed(dest)
	if err != nil {
		return err
	}
	if installed {
		if !replace {
			return &ErrInstallDestinationExists{Dest: dest}
		}
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
	}
	return extractZip(loc.Path, dest)
}

func (f *ArchiveInlineFinder) Installed(dest string) (bool, error) {
	_, err := os.Stat(filepath.Join(dest, DescriptorFilename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *ArchiveInlineFinder) ClearCache(persistent bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = map[string][]byte{}
}
