package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With only default/Sc1 and default/Sc11 defined, project_z/Sc110 resolves
// (via the default tree) to default/Sc11, and project_z/Sc001 resolves to
// default itself.
func TestClosestDefaultLongestPrefix(t *testing.T) {
	f := New()
	_, _, err := f.Insert([]string{DefaultRootName}, "site", "root")
	require.NoError(t, err)
	_, _, err = f.Insert([]string{DefaultRootName, "Sc1"}, "site", "sc1")
	require.NoError(t, err)
	_, _, err = f.Insert([]string{DefaultRootName, "Sc11"}, "site", "sc11")
	require.NoError(t, err)

	n := f.Closest("project_z/Sc110")
	require.NotNil(t, n)
	assert.Equal(t, "Sc11", n.Name)

	n = f.Closest("project_z/Sc001")
	require.NotNil(t, n)
	assert.Equal(t, DefaultRootName, n.Name)
}

func TestClosestExactDescentStopsAtDeepestMatch(t *testing.T) {
	f := New()
	_, _, err := f.Insert([]string{"proj", "Sc001"}, "site", "sc001")
	require.NoError(t, err)

	n := f.Closest("proj/Sc001/Animation")
	require.NotNil(t, n)
	assert.Equal(t, "Sc001", n.Name)
}

func TestPlaceholderReplacedInPlacePreservingChildren(t *testing.T) {
	f := New()
	// Insert a grandchild first, forcing "proj" and "proj/Sc001" to be
	// created as placeholders.
	_, _, err := f.Insert([]string{"proj", "Sc001", "Animation"}, "site", "animation")
	require.NoError(t, err)

	parent := f.Roots["proj"].Children["Sc001"]
	require.True(t, parent.Placeholder)
	require.Len(t, parent.Children, 1)

	node, warn, err := f.Insert([]string{"proj", "Sc001"}, "site", "sc001-real")
	require.NoError(t, err)
	require.Nil(t, warn)
	assert.False(t, node.Placeholder)
	assert.Equal(t, "sc001-real", node.Data)
	// The child inserted before the placeholder was replaced survives.
	assert.Len(t, node.Children, 1)
	assert.Contains(t, node.Children, "Animation")
}

func TestDuplicateFromSameSourceRootErrors(t *testing.T) {
	f := New()
	_, _, err := f.Insert([]string{"proj", "Sc001"}, "siteA", "first")
	require.NoError(t, err)
	_, _, err = f.Insert([]string{"proj", "Sc001"}, "siteA", "second")
	require.Error(t, err)
	var dup *ErrDuplicateDefinition
	require.ErrorAs(t, err, &dup)
}

func TestDuplicateFromDifferentSourceRootWarnsAndKeepsFirst(t *testing.T) {
	f := New()
	_, _, err := f.Insert([]string{"proj", "Sc001"}, "siteA", "first")
	require.NoError(t, err)
	node, warn, err := f.Insert([]string{"proj", "Sc001"}, "siteB", "second")
	require.NoError(t, err)
	require.NotNil(t, warn)
	assert.Equal(t, "first", node.Data)
}
