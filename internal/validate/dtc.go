package validate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultCompileTimeout bounds one external compiler invocation. The
// compiler is the only unbounded step in the pipeline, so the bound is
// mandatory.
const DefaultCompileTimeout = 30 * time.Second

// DTC invokes the device tree compiler as a subprocess. Each Compile call
// creates a scoped temporary working directory that is removed on every
// exit path, including compiler failure; the returned bytes are the only
// thing that outlives the namespace.
type DTC struct {
	// Binary is the compiler executable; "dtc" when empty.
	Binary string

	// IncludeDirs are searched for the derivative's reference includes.
	IncludeDirs []string

	// Timeout bounds one invocation; DefaultCompileTimeout when zero.
	Timeout time.Duration
}

// Compile writes the source to a temporary directory, runs the compiler,
// and returns the produced binary.
func (d *DTC) Compile(ctx context.Context, source string) ([]byte, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultCompileTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "fwtree-compile-")
	if err != nil {
		return nil, fmt.Errorf("create compile workspace: %w", err)
	}
	defer os.RemoveAll(workDir)

	srcPath := filepath.Join(workDir, "derivative.dts")
	outPath := filepath.Join(workDir, "derivative.dtb")
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write derivative source: %w", err)
	}

	binary := d.Binary
	if binary == "" {
		binary = "dtc"
	}
	args := []string{"-I", "dts", "-O", "dtb", "-o", outPath}
	for _, dir := range d.IncludeDirs {
		args = append(args, "-i", dir)
	}
	args = append(args, srcPath)

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Surface the deadline, not the kill signal the
			// subprocess died with.
			return nil, ctx.Err()
		}
		return nil, classifyCompilerError(stderr.String(), err)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read compiled output: %w", err)
	}
	return out, nil
}

// locationPattern matches dtc diagnostics of the form
// "Error: derivative.dts:12.3-9 syntax error".
var locationPattern = regexp.MustCompile(`:(\d+)\.(\d+)(?:-\d+(?:\.\d+)?)?\s+(.+)`)

// missingPattern matches unresolved include diagnostics, e.g.
// "Couldn't open \"upstream-board.dts\": No such file or directory".
var missingPattern = regexp.MustCompile(`[Cc]ouldn't open "?([^":]+)"?`)

// classifyCompilerError converts compiler stderr into the structured
// failure forms the validator reports.
func classifyCompilerError(stderr string, runErr error) error {
	stderr = strings.TrimSpace(stderr)

	if m := missingPattern.FindStringSubmatch(stderr); m != nil {
		return &MissingIncludeError{Include: m[1]}
	}
	if m := locationPattern.FindStringSubmatch(stderr); m != nil {
		line, _ := strconv.Atoi(m[1])
		column, _ := strconv.Atoi(m[2])
		return &CompileError{Line: line, Column: column, Message: strings.TrimSpace(m[3])}
	}
	if stderr != "" {
		return &CompileError{Message: stderr}
	}
	return &CompileError{Message: runErr.Error()}
}
