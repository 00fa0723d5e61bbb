package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Name    string
	Version string
}

func writeCache(t *testing.T, path string, version int, kind string, entries map[string]samplePayload) {
	t.Helper()
	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetVersion(version))
	for descriptor, payload := range entries {
		require.NoError(t, c.Put(kind, filepath.Dir(descriptor), descriptor, payload))
	}
}

func TestPutAllRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.cache")
	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetVersion(SupportedVersion))
	assert.Equal(t, SupportedVersion, c.Version())

	require.NoError(t, c.Put("distro_paths", `/distros`, `/distros/the_dcc/descriptor.json`,
		samplePayload{Name: "the_dcc", Version: "1.0.0"}))
	require.NoError(t, c.Put("config_paths", `/configs`, `/configs/default.json`,
		samplePayload{Name: "default"}))

	distros, err := c.All("distro_paths")
	require.NoError(t, err)
	require.Len(t, distros, 1)
	assert.Equal(t, "/distros", distros[0].Dir)
	assert.Equal(t, "/distros/the_dcc/descriptor.json", distros[0].Descriptor)

	var payload samplePayload
	require.NoError(t, json.Unmarshal(distros[0].Payload, &payload))
	assert.Equal(t, "the_dcc", payload.Name)
	assert.Equal(t, "1.0.0", payload.Version)

	configs, err := c.All("config_paths")
	require.NoError(t, err)
	require.Len(t, configs, 1)

	_, err = c.All("bogus_kind")
	require.Error(t, err)
}

func TestPutStoresPosixPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.cache")
	c, err := Open(path)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put("distro_paths", `z:\distros`, `z:\distros\the_dcc\descriptor.json`, samplePayload{}))
	entries, err := c.All("distro_paths")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "z:/distros", entries[0].Dir)
	assert.Equal(t, "z:/distros/the_dcc/descriptor.json", entries[0].Descriptor)
}

func TestLoadAndFlattenMissingFileIsOptional(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.cache")
	idx, err := LoadAndFlatten([]string{path}, "distro_paths", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())

	// A load must never create the file it failed to find.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadAndFlattenSkipsNewerVersionWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.cache")
	writeCache(t, path, SupportedVersion+1, "distro_paths", map[string]samplePayload{
		"/distros/the_dcc/descriptor.json": {Name: "the_dcc"},
	})

	var warnings []string
	warnf := func(format string, args ...interface{}) {
		warnings = append(warnings, format)
	}
	idx, err := LoadAndFlatten([]string{path}, "distro_paths", warnf)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
	require.Len(t, warnings, 1)
}

func TestLoadAndFlattenLeftMostSiteWins(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.cache")
	right := filepath.Join(dir, "right.cache")

	writeCache(t, left, SupportedVersion, "distro_paths", map[string]samplePayload{
		"/distros/the_dcc/descriptor.json": {Name: "the_dcc", Version: "left"},
	})
	writeCache(t, right, SupportedVersion, "distro_paths", map[string]samplePayload{
		"/distros/the_dcc/descriptor.json":    {Name: "the_dcc", Version: "right"},
		"/distros/right_only/descriptor.json": {Name: "right_only", Version: "1.0"},
	})

	idx, err := LoadAndFlatten([]string{left, right}, "distro_paths", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())

	e, ok := idx.Lookup("/distros/the_dcc/descriptor.json")
	require.True(t, ok)
	var payload samplePayload
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "left", payload.Version, "the left-most site's entry wins on duplicates")

	_, ok = idx.Lookup("/distros/right_only/descriptor.json")
	assert.True(t, ok, "non-conflicting entries from the right site survive")
}

func TestIndexForDir(t *testing.T) {
	idx := NewIndex()
	idx.Merge([]Entry{
		{Dir: "/a", Descriptor: "/a/one.json"},
		{Dir: "/a", Descriptor: "/a/two.json"},
		{Dir: "/b", Descriptor: "/b/three.json"},
	})

	assert.Len(t, idx.ForDir("/a"), 2)
	assert.Len(t, idx.ForDir("/b"), 1)
	assert.Empty(t, idx.ForDir("/c"))
}
