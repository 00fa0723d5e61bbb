package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfig is a minimal FlatConfig backing the emit tests.
type fakeConfig struct {
	uri     string
	env     map[string]Value
	aliases map[string]Alias
}

func (f *fakeConfig) URIValue() string { return f.uri }
func (f *fakeConfig) EnvironmentFor(platformName string) map[string]Value {
	return f.env
}
func (f *fakeConfig) AliasesFor(platformName string) map[string]Alias {
	return f.aliases
}
func (f *fakeConfig) Freeze() (string, error) { return "v1:frozen", nil }

func sampleConfig() *fakeConfig {
	return &fakeConfig{
		uri: "project_z/Sc001",
		env: map[string]Value{
			"STUDIO_TOOLS": {Parts: []string{"/opt/tools", "/mnt/share/tools"}},
			"GONE":         {Unset: true},
		},
		aliases: map[string]Alias{
			"dcc": {Cmd: "run_the_dcc"},
		},
	}
}

func readScript(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestEmitPosixShell(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Emit(sampleConfig(), "linux", dir, "", "", nil))

	config := readScript(t, dir, "hab_config")
	assert.Contains(t, config, "#!/bin/sh")
	assert.Contains(t, config, `export HAB_URI="project_z/Sc001"`)
	assert.Contains(t, config, `if [ -z "$HAB_FREEZE" ]; then export HAB_FREEZE="v1:frozen"; fi`)
	assert.Contains(t, config, "unset GONE")
	assert.Contains(t, config, `export STUDIO_TOOLS="/opt/tools:/mnt/share/tools"`)
	assert.Contains(t, config, `dcc() { run_the_dcc "$@" ; }`)
	assert.NotContains(t, config, "doskey")

	launch := readScript(t, dir, "hab_launch")
	assert.Contains(t, launch, `. "$(dirname "$0")/hab_config"`)
	assert.NotContains(t, launch, "exit $?", "no alias means nothing to propagate")
}

func TestEmitPosixLaunchInvokesAlias(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Emit(sampleConfig(), "linux", dir, "", "dcc", []string{"--scene", "sc 001"}))

	launch := readScript(t, dir, "hab_launch")
	assert.Contains(t, launch, `dcc --scene "sc 001"`)
	assert.Contains(t, launch, "exit $?")
}

func TestEmitBatchWritesPerAliasFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Emit(sampleConfig(), "windows", dir, ".bat", "dcc", nil))

	config := readScript(t, dir, "hab_config.bat")
	assert.Contains(t, config, "@echo off")
	assert.Contains(t, config, "set HAB_URI=project_z/Sc001")
	assert.Contains(t, config, "if not defined HAB_FREEZE set HAB_FREEZE=v1:frozen")
	assert.Contains(t, config, "set GONE=")
	assert.Contains(t, config, "set STUDIO_TOOLS=/opt/tools;/mnt/share/tools")
	assert.Contains(t, config, "doskey dcc=")

	aliasFile := readScript(t, filepath.Join(dir, "aliases"), "dcc.bat")
	assert.Contains(t, aliasFile, "@echo off")
	assert.Contains(t, aliasFile, "run_the_dcc %*")

	launch := readScript(t, dir, "hab_launch.bat")
	assert.Contains(t, launch, `call "%~dp0hab_config.bat"`)
	assert.Contains(t, launch, "call dcc")
	assert.Contains(t, launch, "exit /b %errorlevel%")
}

func TestEmitPowershell(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Emit(sampleConfig(), "windows", dir, ".ps1", "", nil))

	config := readScript(t, dir, "hab_config.ps1")
	assert.Contains(t, config, `$env:HAB_URI = "project_z/Sc001"`)
	assert.Contains(t, config, `if (-not $env:HAB_FREEZE) { $env:HAB_FREEZE = "v1:frozen" }`)
	assert.Contains(t, config, "Remove-Item Env:GONE")
	assert.Contains(t, config, `$env:STUDIO_TOOLS = "/opt/tools;/mnt/share/tools"`)
	assert.Contains(t, config, "function dcc { run_the_dcc $args }")

	// No per-alias files for powershell.
	_, err := os.Stat(filepath.Join(dir, "aliases"))
	assert.True(t, os.IsNotExist(err))
}

// Windows-bash keeps ':' for PATH while every other list variable on the
// same shell uses ';'.
func TestEmitWindowsBashPathSeparators(t *testing.T) {
	cfg := &fakeConfig{
		uri: "project_z/Sc001",
		env: map[string]Value{
			"PATH":  {Parts: []string{"/opt/tools", "/mnt/share/tools"}},
			"OTHER": {Parts: []string{"/opt/tools", "/mnt/share/tools"}},
		},
	}
	dir := t.TempDir()
	require.NoError(t, Emit(cfg, "windows", dir, "", "", nil))

	config := readScript(t, dir, "hab_config")
	assert.Contains(t, config, `export PATH="/opt/tools:/mnt/share/tools"`)
	assert.Contains(t, config, `export OTHER="/opt/tools;/mnt/share/tools"`)
}

func TestQuoteForShell(t *testing.T) {
	assert.Equal(t, "plain", quoteForShell("plain", "sh"))
	assert.Equal(t, `"has space"`, quoteForShell("has space", "sh"))
	assert.Equal(t, "has` space", quoteForShell("has space", "ps"))
	assert.Equal(t, `"has space"`, quoteForShell("has space", "batch"))
}

func TestRenderCommandJoinsLists(t *testing.T) {
	cmd := renderCommand([]interface{}{"run_the_dcc", "--flag", "two words"}, "linux", "sh")
	assert.Equal(t, `run_the_dcc --flag "two words"`, cmd)

	single := renderCommand("run_the_dcc", "linux", "sh")
	assert.Equal(t, "run_the_dcc", single)
}

func TestEmitRejectsUnknownPlatform(t *testing.T) {
	err := Emit(sampleConfig(), "plan9", t.TempDir(), "", "", nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "plan9"))
}
