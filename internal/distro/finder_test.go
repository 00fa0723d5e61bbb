package distro

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeZip builds a zip archive at path holding the given member files.
func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range members {
		zf, err := w.Create(name)
		require.NoError(t, err)
		_, err = zf.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestVersionFromFilename(t *testing.T) {
	cases := []struct {
		stem    string
		name    string
		version string
		ok      bool
	}{
		{"the_dcc_v1.2.0", "the_dcc", "1.2.0", true},
		{"dist_with_underscores_v0.1", "dist_with_underscores", "0.1", true},
		{"no-version-marker", "", "", false},
	}
	for _, c := range cases {
		name, version, ok := VersionFromFilename(c.stem)
		assert.Equal(t, c.ok, ok, c.stem)
		assert.Equal(t, c.name, name, c.stem)
		assert.Equal(t, c.version, version, c.stem)
	}
}

func TestResolveVersionFallbackChain(t *testing.T) {
	t.Run("explicit field wins", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "1.0.0")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		v, err := ResolveVersion(dir, "2.0.0", nil)
		require.NoError(t, err)
		assert.Equal(t, "2.0.0", v)
	})

	t.Run("sidecar file beats directory name", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "1.0.0")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		writeFile(t, filepath.Join(dir, versionSidecarName), "3.1.4\n")
		v, err := ResolveVersion(dir, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "3.1.4", v)
	})

	t.Run("directory name fallback", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "1.0.0")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		v, err := ResolveVersion(dir, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", v)
	})

	t.Run("ignored directory short-circuits", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "release")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		_, err := ResolveVersion(dir, "1.0.0", map[string]bool{"release": true})
		require.Error(t, err)
		assert.True(t, IsIgnoredVersion(err))
	})
}

func TestDirFinder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "the_dcc-1.0.0", DescriptorFilename), `{
		"name": "the_dcc",
		"version": "1.0.0",
		"distros": {"the_dcc_plugin": ">=1.0"}
	}`)
	writeFile(t, filepath.Join(root, "the_dcc-1.0.0", "payload.txt"), "bin")

	f := NewDirFinder(root, nil)

	locations, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, locations, 1)

	d, err := f.LoadDescriptor(locations[0])
	require.NoError(t, err)
	assert.Equal(t, "the_dcc", d.Name)
	assert.Equal(t, "1.0.0", d.Version)
	require.Contains(t, d.Requirements, "the_dcc_plugin")
	assert.Equal(t, ">=1.0", d.Requirements["the_dcc_plugin"].Spec)

	content, err := f.Content(locations[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "the_dcc-1.0.0"), content)

	dest := filepath.Join(t.TempDir(), "installed")
	installed, err := f.Installed(dest)
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, f.Install(locations[0], dest, false))
	installed, err = f.Installed(dest)
	require.NoError(t, err)
	assert.True(t, installed)

	err = f.Install(locations[0], dest, false)
	require.Error(t, err)
	var exists *ErrInstallDestinationExists
	require.ErrorAs(t, err, &exists)

	require.NoError(t, f.Install(locations[0], dest, true))
}

func TestDirFinderIgnoredDirectorySkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "release", DescriptorFilename), `{"name": "ignored_distro"}`)

	f := NewDirFinder(root, map[string]bool{"release": true})
	locations, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, locations, 1)

	_, err = f.LoadDescriptor(locations[0])
	require.Error(t, err)
	assert.True(t, IsIgnoredVersion(err))
}

func TestArchiveSidecarFinder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "the_dcc_v1.0.descriptor.json"), `{"name": "the_dcc"}`)
	writeZip(t, filepath.Join(root, "the_dcc_v1.0.zip"), map[string]string{
		DescriptorFilename: `{"name": "the_dcc"}`,
		"payload.txt":      "bin",
	})

	f := NewArchiveSidecarFinder(root, nil)

	locations, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, locations, 1)

	d, err := f.LoadDescriptor(locations[0])
	require.NoError(t, err)
	assert.Equal(t, "the_dcc", d.Name)
	// Version comes from the {distro}_v{version} sidecar stem.
	assert.Equal(t, "1.0", d.Version)

	content, err := f.Content(locations[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "the_dcc_v1.0.zip"), content)

	dest := filepath.Join(t.TempDir(), "installed")
	require.NoError(t, f.Install(locations[0], dest, false))
	installed, err := f.Installed(dest)
	require.NoError(t, err)
	assert.True(t, installed)

	data, err := os.ReadFile(filepath.Join(dest, "payload.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bin", string(data))

	err = f.Install(locations[0], dest, false)
	require.Error(t, err)
	var exists *ErrInstallDestinationExists
	require.ErrorAs(t, err, &exists)
}

func TestArchiveInlineFinder(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "the_dcc_v1.1.zip"), map[string]string{
		DescriptorFilename: `{"name": "the_dcc", "version": "1.1.0"}`,
		"payload.txt":      "bin",
	})

	f := NewArchiveInlineFinder(root, nil)

	locations, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, locations, 1)

	d, err := f.LoadDescriptor(locations[0])
	require.NoError(t, err)
	assert.Equal(t, "the_dcc", d.Name)
	// The explicit version field beats the filename stem.
	assert.Equal(t, "1.1.0", d.Version)

	content, err := f.Content(locations[0])
	require.NoError(t, err)
	assert.Equal(t, locations[0].Path, content)

	// A second load is served from the in-memory member cache; removing the
	// archive from disk proves nothing re-reads it.
	require.NoError(t, os.Remove(locations[0].Path))
	d2, err := f.LoadDescriptor(locations[0])
	require.NoError(t, err)
	assert.Equal(t, d.Version, d2.Version)

	// Clearing the cache forces the next load back to the (now gone) file.
	f.ClearCache(false)
	_, err = f.LoadDescriptor(locations[0])
	require.Error(t, err)
}

func TestArchiveInlineFinderInstall(t *testing.T) {
	root := t.TempDir()
	writeZip(t, filepath.Join(root, "the_dcc_v1.1.zip"), map[string]string{
		DescriptorFilename: `{"name": "the_dcc", "version": "1.1.0"}`,
		"bin/run":          "#!/bin/sh\n",
	})

	f := NewArchiveInlineFinder(root, nil)
	locations, err := f.Enumerate()
	require.NoError(t, err)
	require.Len(t, locations, 1)

	dest := filepath.Join(t.TempDir(), "installed")
	require.NoError(t, f.Install(locations[0], dest, false))
	installed, err := f.Installed(dest)
	require.NoError(t, err)
	assert.True(t, installed)

	_, err = os.Stat(filepath.Join(dest, "bin", "run"))
	require.NoError(t, err)
}

// countingFinder records LoadDescriptor calls so lazy-load behavior is
// observable.
type countingFinder struct {
	DirFinder
	loads int
}

func (f *countingFinder) LoadDescriptor(loc Location) (*Descriptor, error) {
	f.loads++
	return f.DirFinder.LoadDescriptor(loc)
}

func TestLazyVersionDefersDescriptorLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "the_dcc-1.0.0", DescriptorFilename), `{
		"name": "the_dcc",
		"version": "1.0.0",
		"distros": {"the_dcc_plugin": ">=1.0"}
	}`)

	finder := &countingFinder{DirFinder: DirFinder{Root: root}}
	loc := Location{Root: root, Path: filepath.Join(root, "the_dcc-1.0.0", DescriptorFilename)}

	lv := NewLazyVersion("the_dcc", "1.0.0", finder, loc)
	assert.Equal(t, "the_dcc", lv.Name())
	assert.Equal(t, "1.0.0", lv.Version())
	assert.Equal(t, 0, finder.loads, "identity attributes must not trigger a load")

	reqs, err := lv.Requirements()
	require.NoError(t, err)
	require.Contains(t, reqs, "the_dcc_plugin")
	assert.Equal(t, 1, finder.loads)

	_, err = lv.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, 1, finder.loads, "descriptor load happens exactly once")
}
