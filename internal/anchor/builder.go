// Package anchor drives the Anchor toolchain as a subprocess: scaffolding
// program workspaces, building them, and locating compiled artifacts. It
// also owns the workspace file boundary used by the file tools.
package anchor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
)

// Artifact locates one build's outputs.
type Artifact struct {
	WorkspaceDir string `json:"workspace_dir"`
	BinaryPath   string `json:"binary_path"`
	IDLPath      string `json:"idl_path,omitempty"`
}

// ScaffoldError reports a workspace creation collision.
type ScaffoldError struct {
	Dir    string
	Reason string
}

func (e *ScaffoldError) Error() string {
	return fmt.Sprintf("scaffold %s: %s", e.Dir, e.Reason)
}

// Builder scaffolds and compiles Anchor programs under the workspace root.
type Builder struct {
	ws        *Workspace
	bin       string
	timeout   time.Duration
	outputCap int
	tailLines int
	log       *zap.SugaredLogger

	// Seams for deterministic workspace names in tests.
	nowFn func() time.Time
	idFn  func() string
}

// NewBuilder builds the pipeline from configuration, creating the
// workspace root if needed.
func NewBuilder(cfg *config.Config) (*Builder, error) {
	ws, err := NewWorkspace(cfg.Build.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	return &Builder{
		ws:        ws,
		bin:       cfg.Build.AnchorBin,
		timeout:   cfg.GetBuildTimeout(),
		outputCap: cfg.Build.OutputCap,
		tailLines: cfg.Build.TailLines,
		log:       logging.L("anchor"),
		nowFn:     time.Now,
		idFn:      func() string { return uuid.NewString()[:8] },
	}, nil
}

// Workspace returns the file boundary shared with the file tools.
func (b *Builder) Workspace() *Workspace {
	return b.ws
}

// Probe checks that the toolchain binary is reachable. Absence is a
// startup warning, not an error: build tools fail at call time with a
// clear message instead.
func (b *Builder) Probe() bool {
	if _, err := exec.LookPath(b.bin); err != nil {
		b.log.Warnw("toolchain not found on PATH; build tools will fail until it is installed", "bin", b.bin)
		return false
	}
	return true
}

// CreateProgram scaffolds a fresh workspace for name, writes the provided
// Cargo.toml and lib.rs over the generated ones (keeping the originals
// under source.orig/), and builds. The workspace directory name embeds a
// timestamp and a random suffix so concurrent sessions cannot collide.
func (b *Builder) CreateProgram(ctx context.Context, name, cargoToml, libRS string) (*Artifact, error) {
	slug := kebab(name)
	if slug == "" {
		return nil, &ScaffoldError{Dir: b.ws.Root(), Reason: fmt.Sprintf("program name %q reduces to nothing usable", name)}
	}

	// Reject syntactically broken source before paying for a toolchain run.
	if diags := sourceDiagnostics([]byte(libRS)); len(diags) > 0 {
		b.log.Infow("source rejected by syntax gate", "program", slug, "diagnostics", len(diags))
		return nil, &fault.BuildError{ExitCode: -1, StderrTail: "lib.rs failed syntax check:\n" + strings.Join(diags, "\n")}
	}

	dirName := fmt.Sprintf("%s-%x-%s", slug, b.nowFn().Unix(), b.idFn())
	wsDir := filepath.Join(b.ws.Root(), dirName)

	if entries, err := os.ReadDir(wsDir); err == nil && len(entries) > 0 {
		return nil, &ScaffoldError{Dir: wsDir, Reason: "directory already exists and is not empty"}
	}

	b.log.Infow("scaffolding program workspace", "program", slug, "dir", wsDir)
	res, err := b.run(ctx, b.ws.Root(), "init", dirName)
	if err != nil {
		return nil, &fault.BuildError{ExitCode: res.ExitCode, StderrTail: tail(res.Output, b.tailLines)}
	}

	programDir := filepath.Join(wsDir, "programs", dirName)
	if err := b.overwriteSource(programDir, cargoToml, libRS); err != nil {
		return nil, err
	}

	if err := b.build(ctx, wsDir); err != nil {
		return nil, err
	}

	return b.locateArtifact(wsDir, snake(name))
}

// Rebuild re-invokes the toolchain in an existing workspace without
// re-scaffolding. The directory must live inside the workspace root.
func (b *Builder) Rebuild(ctx context.Context, workspaceDir string) (*Artifact, error) {
	wsDir, err := b.ws.Resolve(workspaceDir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(wsDir, "Anchor.toml")); err != nil {
		return nil, fmt.Errorf("%s is not an anchor workspace (no Anchor.toml)", workspaceDir)
	}

	b.log.Infow("rebuilding workspace", "dir", wsDir)
	if err := b.build(ctx, wsDir); err != nil {
		return nil, err
	}
	return b.locateArtifact(wsDir, "")
}

func (b *Builder) build(ctx context.Context, wsDir string) error {
	res, err := b.run(ctx, wsDir, "build")
	if err != nil {
		return &fault.BuildError{ExitCode: res.ExitCode, StderrTail: tail(res.Output, b.tailLines)}
	}
	return nil
}

// overwriteSource swaps in the generated source, preserving the scaffold's
// originals under source.orig/ for diffing.
func (b *Builder) overwriteSource(programDir, cargoToml, libRS string) error {
	backupDir := filepath.Join(programDir, "source.orig")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("creating source backup dir: %w", err)
	}

	for _, rel := range []string{"Cargo.toml", filepath.Join("src", "lib.rs")} {
		src := filepath.Join(programDir, rel)
		if data, err := os.ReadFile(src); err == nil {
			backup := filepath.Join(backupDir, filepath.Base(rel))
			if err := os.WriteFile(backup, data, 0644); err != nil {
				return fmt.Errorf("backing up %s: %w", rel, err)
			}
		}
	}

	if err := os.WriteFile(filepath.Join(programDir, "Cargo.toml"), []byte(cargoToml), 0644); err != nil {
		return fmt.Errorf("writing Cargo.toml: %w", err)
	}
	libPath := filepath.Join(programDir, "src", "lib.rs")
	if err := os.MkdirAll(filepath.Dir(libPath), 0755); err != nil {
		return fmt.Errorf("creating src dir: %w", err)
	}
	if err := os.WriteFile(libPath, []byte(libRS), 0644); err != nil {
		return fmt.Errorf("writing lib.rs: %w", err)
	}
	return nil
}

// locateArtifact finds the compiled binary. Preference order: the
// conventional name derived from the program name, then the single .so in
// target/deploy, then the newest one.
func (b *Builder) locateArtifact(wsDir, libName string) (*Artifact, error) {
	deployDir := filepath.Join(wsDir, "target", "deploy")

	if libName != "" {
		conventional := filepath.Join(deployDir, libName+".so")
		if _, err := os.Stat(conventional); err == nil {
			return b.artifactFor(wsDir, conventional, libName), nil
		}
	}

	matches, err := filepath.Glob(filepath.Join(deployDir, "*.so"))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("build completed but no .so found under %s", deployDir)
	}

	best := matches[0]
	if len(matches) > 1 {
		var bestTime time.Time
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.ModTime().After(bestTime) {
				best, bestTime = m, info.ModTime()
			}
		}
	}
	name := strings.TrimSuffix(filepath.Base(best), ".so")
	return b.artifactFor(wsDir, best, name), nil
}

func (b *Builder) artifactFor(wsDir, binaryPath, libName string) *Artifact {
	art := &Artifact{WorkspaceDir: wsDir, BinaryPath: binaryPath}
	idl := filepath.Join(wsDir, "target", "idl", libName+".json")
	if _, err := os.Stat(idl); err == nil {
		art.IDLPath = idl
	}
	b.log.Infow("artifact located", "binary", art.BinaryPath, "idl", art.IDLPath)
	return art
}

// kebab lowercases name and maps separators to hyphens, dropping anything
// that is not [a-z0-9-].
func kebab(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			sb.WriteRune('-')
		}
	}
	return strings.Trim(collapseRuns(sb.String(), '-'), "-")
}

// snake is the Cargo library naming convention for the same input.
func snake(name string) string {
	return strings.ReplaceAll(kebab(name), "-", "_")
}

func collapseRuns(s string, r byte) string {
	var sb strings.Builder
	var prev byte
	for i := 0; i < len(s); i++ {
		if s[i] == r && prev == r {
			continue
		}
		sb.WriteByte(s[i])
		prev = s[i]
	}
	return sb.String()
}
