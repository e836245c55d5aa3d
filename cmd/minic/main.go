// Command minic compiles a single C-like source file to LLVM textual IR,
// optionally invoking a native compiler on the result and running the
// produced binary.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codeassociates/minic/codegen"
	"github.com/codeassociates/minic/driver"
	"github.com/codeassociates/minic/lexer"
	"github.com/codeassociates/minic/parser"
)

const defaultInput = "./input.c"

type options struct {
	output       string
	emitLLVMOnly bool
	cc           string
	target       string
	optLevel     string
	runtimeShim  string
	run          bool
	dumpAST      bool
	dumpTokens   bool
	verbose      bool
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "minic [flags] <input.c>",
		Short: "compile a C-like source file to LLVM IR",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := defaultInput
			if len(args) == 1 {
				input = args[0]
			}
			return run(input, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "path to write textual LLVM IR (default: input with .ll extension)")
	flags.BoolVar(&opts.emitLLVMOnly, "emit-llvm-only", false, "stop after writing IR; do not invoke the native toolchain")
	flags.StringVar(&opts.cc, "cc", "clang", "native compiler to shell out to")
	flags.StringVar(&opts.target, "target", "", "target triple forwarded to the native compiler (default: the compiler's own default)")
	flags.StringVar(&opts.optLevel, "opt-level", "", "optimization level forwarded to the native compiler verbatim, e.g. O2")
	flags.StringVar(&opts.runtimeShim, "runtime-shim", "", "path to a C source file providing I/O built-ins, compiled and linked alongside the generated IR")
	flags.BoolVar(&opts.run, "run", false, "execute the produced binary after linking and stream its output")
	flags.BoolVar(&opts.dumpAST, "dump-ast", false, "print an indented AST dump to stderr before code generation")
	flags.BoolVar(&opts.dumpTokens, "dump-tokens", false, "print the token stream to stderr before parsing")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug-level structured logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(input string, opts *options) error {
	log := newLogger(opts.verbose)
	defer log.Sync()

	source, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("cannot read %q: %w", input, err)
	}

	log.Info("tokenizing", zap.String("input", input))
	toks, err := lexer.New(string(source)).Tokenize()
	if err != nil {
		return err
	}
	if opts.dumpTokens {
		for _, tok := range toks {
			fmt.Fprintf(os.Stderr, "%s %s\n", tok.Pos, tok.Kind)
		}
	}

	log.Info("parsing")
	root, err := parser.New(toks).ParseProgram()
	if err != nil {
		return err
	}
	if opts.dumpAST {
		for _, child := range root.Children {
			fmt.Fprintln(os.Stderr, child.Dump(0))
		}
	}

	log.Info("generating LLVM IR")
	mod, err := codegen.New(codegen.WithLogger(log)).Generate(root)
	if err != nil {
		return err
	}

	outputPath := opts.output
	if outputPath == "" {
		outputPath = replaceExt(input, ".ll")
	}
	if err := os.WriteFile(outputPath, []byte(mod.String()), 0o644); err != nil {
		return fmt.Errorf("cannot write %q: %w", outputPath, err)
	}
	log.Debug("wrote IR", zap.String("path", outputPath))

	if opts.emitLLVMOnly {
		return nil
	}

	binPath := strings.TrimSuffix(outputPath, ".ll")
	driverOpts := driver.Options{
		Triple:      opts.target,
		OptLevel:    opts.optLevel,
		RuntimeShim: opts.runtimeShim,
	}
	d := driver.New(driver.WithCC(opts.cc), driver.WithOptions(driverOpts), driver.WithLogger(log))
	if err := d.Compile(outputPath, binPath); err != nil {
		return err
	}

	if opts.run {
		return d.Run(binPath)
	}
	return nil
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func replaceExt(path, ext string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[:idx] + ext
	}
	return path + ext
}
