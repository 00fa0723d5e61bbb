package distro

import (
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	shutil "github.com/termie/go-shutil"

	"github.com/hab-env/hab/internal/loader"
)

// DescriptorFilename is the well-known distro descriptor filename a
// DirFinder searches for beneath its root.
const DescriptorFilename = "descriptor.json"

// DirFinder searches a directory tree for `*/descriptor.json` files,
// treating each match's parent directory as one distro version.
type DirFinder struct {
	Root    string
	Ignored map[string]bool
}

// NewDirFinder returns a finder rooted at root.
func NewDirFinder(root string, ignored map[string]bool) *DirFinder {
	return &DirFinder{Root: root, Ignored: ignored}
}

// Enumerate walks Root with godirwalk and keeps the descriptor files that
// sit exactly one directory below Root.
func (f *DirFinder) Enumerate() ([]Location, error) {
	root := filepath.Clean(f.Root)
	var out []Location
	err := godirwalk.Walk(f.Root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if filepath.Base(path) == DescriptorFilename && filepath.Dir(filepath.Dir(path)) == root {
				out = append(out, Location{Root: f.Root, Path: path})
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *DirFinder) Content(loc Location) (string, error) {
	return filepath.Dir(loc.Path), nil
}

func (f *DirFinder) LoadDescriptor(loc Location) (*Descriptor, error) {
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		return nil, err
	}
	var raw loader.RawDistro
	if err := loader.LoadJSON(data, &raw); err != nil {
		return nil, err
	}
	version, err := ResolveVersion(filepath.Dir(loc.Path), raw.Version, f.Ignored)
	if err != nil {
		return nil, err
	}
	return descriptorFromRaw(raw, version, loc)
}

func (f *DirFinder) Install(loc Location, dest string, replace bool) error {
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
	src, err := f.Content(loc)
	if err != nil {
		return err
	}
	return shutil.CopyTree(src, dest, nil)
}

func (f *DirFinder) Installed(dest string) (bool, error) {
	_, err := os.Stat(filepath.Join(dest, DescriptorFilename))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *DirFinder) ClearCache(persistent bool) {}

func descriptorFromRaw(raw loader.RawDistro, version string, loc Location) (*Descriptor, error) {
	reqs, err := requirementsFromMap(raw.Distros)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		Name:         raw.Name,
		Version:      version,
		Requirements: reqs,
		Environment:  raw.Environment,
		Aliases:      raw.Aliases,
		AliasMods:    raw.AliasMods,
		Location:     loc,
	}, nil
}
