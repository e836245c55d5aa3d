// Package driver shells out to a native compiler to turn generated LLVM
// textual IR into a binary, and optionally runs that binary. It is the
// external-collaborator boundary past code generation: everything here
// happens after the compiler's own diagnostic phase, so failures are
// reported as plain messages rather than row:col diagnostics.
package driver

import (
	"bytes"
	"io"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options collects the compiler settings a cmd/minic invocation gathers
// from flags and forwards to the native compiler: the target triple, the
// optimization level (forwarded verbatim, e.g. "O2"), and the path to a
// small C runtime shim providing the I/O built-ins (putchar, printf, ...)
// this language has no syntax of its own to declare a definition for.
// Zero values mean "let the native compiler decide" / "no shim".
type Options struct {
	Triple      string
	OptLevel    string
	RuntimeShim string
}

// Option configures a Driver.
type Option func(*Driver)

// WithCC sets the native compiler to invoke. Defaults to "clang".
func WithCC(cc string) Option {
	return func(d *Driver) {
		if cc != "" {
			d.cc = cc
		}
	}
}

// WithOptions sets the target triple, optimization level, and runtime
// shim path forwarded to the native compiler on every Compile call.
func WithOptions(o Options) Option {
	return func(d *Driver) {
		d.opts = o
	}
}

// WithLogger sets the zap logger used for phase-boundary tracing.
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) {
		if log != nil {
			d.log = log
		}
	}
}

// WithStdout/WithStderr redirect the streamed output of a run binary.
// They default to os.Stdout/os.Stderr.
func WithStdout(w io.Writer) Option {
	return func(d *Driver) { d.stdout = w }
}

func WithStderr(w io.Writer) Option {
	return func(d *Driver) { d.stderr = w }
}

// Driver invokes a native toolchain against generated LLVM IR.
type Driver struct {
	cc     string
	opts   Options
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

// New creates a Driver with the given options.
func New(opts ...Option) *Driver {
	d := &Driver{
		cc:     "clang",
		log:    zap.NewNop(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compile invokes the configured native compiler on the .ll file at llPath,
// producing a binary at outPath. The configured target triple and
// optimization level, if any, are forwarded verbatim, and the runtime shim
// source, if set, is compiled and linked alongside llPath. It returns the
// compiler's combined output wrapped in context if the invocation fails.
func (d *Driver) Compile(llPath, outPath string) error {
	args := []string{llPath}
	if d.opts.Triple != "" {
		args = append(args, "-target", d.opts.Triple)
	}
	if d.opts.OptLevel != "" {
		args = append(args, "-"+d.opts.OptLevel)
	}
	if d.opts.RuntimeShim != "" {
		args = append(args, d.opts.RuntimeShim)
	}
	args = append(args, "-o", outPath)

	d.log.Info("invoking native toolchain",
		zap.String("cc", d.cc),
		zap.String("input", llPath),
		zap.String("output", outPath),
		zap.String("triple", d.opts.Triple),
		zap.String("optLevel", d.opts.OptLevel),
		zap.String("runtimeShim", d.opts.RuntimeShim),
	)

	cmd := exec.Command(d.cc, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		d.log.Error("native toolchain failed", zap.Error(err), zap.String("output", combined.String()))
		return errors.Wrapf(err, "%s failed: %s", d.cc, combined.String())
	}

	d.log.Debug("native toolchain succeeded")
	return nil
}

// Run executes the binary at binPath, streaming its stdout/stderr.
func (d *Driver) Run(binPath string, args ...string) error {
	d.log.Info("running produced binary", zap.String("path", binPath))

	cmd := exec.Command(binPath, args...)
	cmd.Stdout = d.stdout
	cmd.Stderr = d.stderr

	if err := cmd.Run(); err != nil {
		d.log.Error("binary execution failed", zap.Error(err))
		return errors.Wrapf(err, "running %s", binPath)
	}
	return nil
}
