package formatter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRelativeRootInterpolation(t *testing.T) {
	scope := Scope{RelativeRoot: "/projects/a"}
	out, err := Format("{relative_root}/bin", scope, ShellNone, false)
	require.NoError(t, err)
	assert.Equal(t, "/projects/a/bin", out)
}

func TestFormatVariableInterpolation(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"proj": "sc001"}}
	out, err := Format("{proj}/Animation", scope, ShellNone, false)
	require.NoError(t, err)
	assert.Equal(t, "sc001/Animation", out)
}

func TestFormatEnvRefPerShell(t *testing.T) {
	cases := []struct {
		shell Shell
		want  string
	}{
		{ShellSh, "$K"},
		{ShellBatch, "%K%"},
		{ShellPS, "$env:K"},
		{ShellNone, "{K!e}"},
	}
	for _, c := range cases {
		out, err := Format("{K!e}", Scope{}, c.shell, false)
		require.NoError(t, err)
		assert.Equal(t, c.want, out)
	}
}

func TestFormatExpandUsesProcessEnv(t *testing.T) {
	t.Setenv("HAB_FMT_TEST", "resolved")
	out, err := Format("{HAB_FMT_TEST!e}", Scope{}, ShellSh, true)
	require.NoError(t, err)
	assert.Equal(t, "resolved", out)
}

func TestFormatPathsepToken(t *testing.T) {
	out, err := Format("a{;}b", Scope{}, ShellSh, false)
	require.NoError(t, err)
	assert.Equal(t, "a:b", out)

	out, err = Format("a{;}b", Scope{}, ShellBatch, false)
	require.NoError(t, err)
	assert.Equal(t, "a;b", out)

	out, err = Format("a{;}b", Scope{}, ShellNone, false)
	require.NoError(t, err)
	assert.Equal(t, "a{;}b", out)
}

func TestCheckReservedRejectsRelativeRootAndPathsep(t *testing.T) {
	require.Error(t, CheckReserved(map[string]interface{}{"relative_root": "x"}))
	require.Error(t, CheckReserved(map[string]interface{}{";": "x"}))
	require.NoError(t, CheckReserved(map[string]interface{}{"proj": "x"}))
}

func TestFormatListWalksElements(t *testing.T) {
	scope := Scope{Variables: map[string]interface{}{"x": "1"}}
	out, err := Format([]interface{}{"{x}", "literal"}, scope, ShellNone, false)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"1", "literal"}, out)
}

func TestFormatUnresolvedVariableErrors(t *testing.T) {
	_, err := Format("{nope}", Scope{}, ShellNone, false)
	require.Error(t, err)
}
