package anchor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
)

// stubAnchor is a stand-in for the anchor CLI. init scaffolds the layout
// anchor produces; build drops a fixed .so and IDL into target/.
const stubAnchor = `#!/bin/sh
case "$1" in
  init)
    name="$2"
    mkdir -p "$name/programs/$name/src"
    printf '[package]\nname = "%s"\n' "$name" > "$name/programs/$name/Cargo.toml"
    printf '// scaffold\n' > "$name/programs/$name/src/lib.rs"
    printf '[programs.localnet]\n' > "$name/Anchor.toml"
    ;;
  build)
    mkdir -p target/deploy target/idl
    printf 'ELFBYTES' > target/deploy/counter_program.so
    printf '{"name":"counter_program"}' > target/idl/counter_program.json
    ;;
esac
exit 0
`

// failingAnchor scaffolds fine but fails the build the way cargo does.
const failingAnchor = `#!/bin/sh
case "$1" in
  init)
    name="$2"
    mkdir -p "$name/programs/$name/src"
    printf '[package]\n' > "$name/programs/$name/Cargo.toml"
    printf '// scaffold\n' > "$name/programs/$name/src/lib.rs"
    printf '[programs.localnet]\n' > "$name/Anchor.toml"
    ;;
  build)
    echo 'Compiling counter-program v0.1.0'
    echo 'error[E0425]: cannot find value counter in this scope' >&2
    exit 101
    ;;
esac
exit 0
`

const testCargoToml = `[package]
name = "counter-program"
version = "0.1.0"

[lib]
crate-type = ["cdylib", "lib"]
name = "counter_program"

[dependencies]
anchor-lang = "0.30.1"
`

func putStubOnPath(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "anchor")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Build.WorkspaceRoot = t.TempDir()
	cfg.Build.Timeout = "30s"

	b, err := NewBuilder(cfg)
	require.NoError(t, err)
	b.nowFn = func() time.Time { return time.Unix(4660, 0) } // 0x1234
	b.idFn = func() string { return "abcd1234" }
	return b
}

func TestCreateProgramBuildsAndLocatesArtifact(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)

	art, err := b.CreateProgram(context.Background(), "Counter Program", testCargoToml, validLibRS)
	require.NoError(t, err)

	wantDir := filepath.Join(b.Workspace().Root(), "counter-program-1234-abcd1234")
	assert.Equal(t, wantDir, art.WorkspaceDir)
	assert.Equal(t, filepath.Join(wantDir, "target", "deploy", "counter_program.so"), art.BinaryPath)
	assert.Equal(t, filepath.Join(wantDir, "target", "idl", "counter_program.json"), art.IDLPath)

	// Generated source replaced the scaffold, scaffold kept aside.
	programDir := filepath.Join(wantDir, "programs", "counter-program-1234-abcd1234")
	lib, err := os.ReadFile(filepath.Join(programDir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, validLibRS, string(lib))

	backup, err := os.ReadFile(filepath.Join(programDir, "source.orig", "lib.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(backup), "scaffold")

	// Toolchain output is kept for diagnostics.
	_, err = os.Stat(filepath.Join(wantDir, "build.log"))
	assert.NoError(t, err)
}

func TestCreateProgramThenRebuildKeepsBinaryPath(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)

	first, err := b.CreateProgram(context.Background(), "counter-program", testCargoToml, validLibRS)
	require.NoError(t, err)

	second, err := b.Rebuild(context.Background(), first.WorkspaceDir)
	require.NoError(t, err)

	assert.Equal(t, first.BinaryPath, second.BinaryPath)
	assert.Equal(t, first.WorkspaceDir, second.WorkspaceDir)
}

func TestCreateProgramScaffoldCollision(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)

	// Occupy the deterministic workspace dir before the builder gets there.
	dir := filepath.Join(b.Workspace().Root(), "counter-program-1234-abcd1234")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover"), []byte("x"), 0644))

	_, err := b.CreateProgram(context.Background(), "counter-program", testCargoToml, validLibRS)
	var se *ScaffoldError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "not empty")
}

func TestCreateProgramSyntaxGateShortCircuits(t *testing.T) {
	// No stub on PATH: if the gate works, the toolchain is never invoked.
	b := testBuilder(t)

	_, err := b.CreateProgram(context.Background(), "broken", testCargoToml, "pub fn broken( {")
	be, ok := fault.AsBuild(err)
	require.True(t, ok)
	assert.Equal(t, -1, be.ExitCode)
	assert.Contains(t, be.StderrTail, "syntax")

	// Nothing was scaffolded.
	entries, err := os.ReadDir(b.Workspace().Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildFailureSurfacesStderrTail(t *testing.T) {
	putStubOnPath(t, failingAnchor)
	b := testBuilder(t)

	_, err := b.CreateProgram(context.Background(), "counter-program", testCargoToml, validLibRS)
	be, ok := fault.AsBuild(err)
	require.True(t, ok)
	assert.Equal(t, 101, be.ExitCode)
	assert.Contains(t, be.StderrTail, "E0425")
}

func TestStderrTailIsBounded(t *testing.T) {
	long := strings.Repeat("line of build noise\n", 100) + "error: the part that matters\n"
	got := tail(long, 3)
	assert.Equal(t, 3, strings.Count(got, "\n")+1)
	assert.Contains(t, got, "the part that matters")
}

func TestRebuildRejectsEscapingWorkspaceDir(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)

	_, err := b.Rebuild(context.Background(), "../elsewhere")
	assert.True(t, fault.IsPathEscape(err))
}

func TestRebuildRequiresAnchorWorkspace(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)

	require.NoError(t, os.MkdirAll(filepath.Join(b.Workspace().Root(), "plain"), 0755))
	_, err := b.Rebuild(context.Background(), "plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an anchor workspace")
}

func TestProbe(t *testing.T) {
	putStubOnPath(t, stubAnchor)
	b := testBuilder(t)
	assert.True(t, b.Probe())

	b.bin = "definitely-not-a-real-binary-zzz"
	assert.False(t, b.Probe())
}

func TestNameNormalization(t *testing.T) {
	assert.Equal(t, "counter-program", kebab("Counter  Program"))
	assert.Equal(t, "counter-program", kebab("counter_program"))
	assert.Equal(t, "counter_program", snake("Counter Program"))
	assert.Equal(t, "", kebab("!!!"))
}

func TestCreateProgramRejectsUnusableName(t *testing.T) {
	b := testBuilder(t)
	_, err := b.CreateProgram(context.Background(), "???", testCargoToml, validLibRS)
	var se *ScaffoldError
	assert.ErrorAs(t, err, &se)
}
