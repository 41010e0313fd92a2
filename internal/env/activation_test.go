package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("# profile\n"), 0644))
	return path
}

func TestScriptLines_PreservesOrder(t *testing.T) {
	a := Activation{
		ProfileScripts: []string{"/etc/profile", "/opt/env/etc/profile.d/env.sh"},
		EnvName:        "hilloc",
		WorkDir:        "experiments/hilloc",
	}

	assert.Equal(t, []string{
		"source /etc/profile",
		"source /opt/env/etc/profile.d/env.sh",
		"activate hilloc",
		"cd experiments/hilloc",
	}, a.ScriptLines())
}

func TestValidate_RequiresEnvNameAndWorkDir(t *testing.T) {
	assert.Error(t, Activation{WorkDir: "x"}.Validate())
	assert.Error(t, Activation{EnvName: "hilloc"}.Validate())
	assert.Error(t, Activation{EnvName: "hilloc", WorkDir: "x", ProfileScripts: []string{""}}.Validate())
	assert.NoError(t, Activation{EnvName: "hilloc", WorkDir: "x"}.Validate())
}

func TestPreflight_PassesWhenCollaboratorsExist(t *testing.T) {
	dir := t.TempDir()
	a := Activation{
		ProfileScripts: []string{writeScript(t, dir, "profile.sh")},
		EnvName:        "hilloc",
		WorkDir:        dir,
	}

	assert.NoError(t, a.Preflight())
}

func TestPreflight_FailsOnMissingProfileScript(t *testing.T) {
	dir := t.TempDir()
	a := Activation{
		ProfileScripts: []string{filepath.Join(dir, "missing.sh")},
		EnvName:        "hilloc",
		WorkDir:        dir,
	}

	err := a.Preflight()
	assert.ErrorIs(t, err, ErrProfileScriptMissing)
}

func TestPreflight_FailsOnMissingWorkDir(t *testing.T) {
	dir := t.TempDir()
	a := Activation{
		ProfileScripts: []string{writeScript(t, dir, "profile.sh")},
		EnvName:        "hilloc",
		WorkDir:        filepath.Join(dir, "nope"),
	}

	err := a.Preflight()
	assert.ErrorIs(t, err, ErrWorkDirMissing)
}

func TestPreflight_FailsWhenWorkDirIsAFile(t *testing.T) {
	dir := t.TempDir()
	file := writeScript(t, dir, "notadir")
	a := Activation{EnvName: "hilloc", WorkDir: file}

	err := a.Preflight()
	assert.ErrorIs(t, err, ErrWorkDirMissing)
}

func TestPreflight_ChecksScriptsBeforeWorkDir(t *testing.T) {
	// Both are missing; the profile script failure must surface first since
	// sourcing runs before the directory change.
	a := Activation{
		ProfileScripts: []string{"/nonexistent/profile.sh"},
		EnvName:        "hilloc",
		WorkDir:        "/nonexistent/dir",
	}

	err := a.Preflight()
	assert.ErrorIs(t, err, ErrProfileScriptMissing)
}
