package codegen_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/codeassociates/minic/codegen"
	"github.com/codeassociates/minic/lexer"
	"github.com/codeassociates/minic/parser"
)

func generate(t *testing.T, src string) string {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	root, err := parser.New(toks).ParseProgram()
	require.NoError(t, err)
	mod, err := codegen.New().Generate(root)
	require.NoError(t, err)
	return mod.String()
}

func generateErr(t *testing.T, src string) error {
	t.Helper()
	toks, err := lexer.New(src).Tokenize()
	require.NoError(t, err)
	root, err := parser.New(toks).ParseProgram()
	require.NoError(t, err)
	_, err = codegen.New().Generate(root)
	return err
}

func TestEmptySourceProducesEmptyModule(t *testing.T) {
	ir := generate(t, "")
	assert.NotContains(t, ir, "define")
}

func TestSimpleFunctionHasSingleReturn(t *testing.T) {
	ir := generate(t, "int main() { return 0; }")
	assert.Contains(t, ir, "define i32 @main()")
	assert.Contains(t, ir, "ret i32 0")
}

func TestArithmeticExpressionEmitsAddAndLoads(t *testing.T) {
	ir := generate(t, "int main() { int x; x = 3; int y; y = x + 4; return y; }")
	assert.Contains(t, ir, "alloca i32")
	assert.Contains(t, ir, "add i32")
	assert.Contains(t, ir, "load i32")
}

func TestComparisonStaysOneBitUntilUsed(t *testing.T) {
	ir := generate(t, "int main() { int x; x = 1; int y; y = x < 2; return y; }")
	assert.Contains(t, ir, "icmp slt i32")
	assert.Contains(t, ir, "zext i1")
}

func TestUnknownIdentifierIsFatal(t *testing.T) {
	err := generateErr(t, "int main() { return missing; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error at")
	assert.Contains(t, err.Error(), "missing")
}

func TestDuplicateDeclarationInSameScopeIsFatal(t *testing.T) {
	err := generateErr(t, "int main() { int x; int x; return 0; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestArityMismatchOnNonVariadicCallIsFatal(t *testing.T) {
	err := generateErr(t, "int f(int a) { return a; } int main() { return f(1, 2); }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments")
}

func TestVariadicCallSkipsArityCheck(t *testing.T) {
	ir := generate(t, "int printf(char *fmt, ...); int main() { return printf(\"hi\", 1, 2, 3); }")
	assert.Contains(t, ir, "call i32 (i8*, ...) @printf")
}

func TestDereferenceTargetRequiresPointerMetadata(t *testing.T) {
	err := generateErr(t, "int main() { int x; return *x; }")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pointer metadata")
}

func TestIfEmitsThenElseFinallyBlocks(t *testing.T) {
	ir := generate(t, "int main() { if (1) { return 1; } else { return 0; } }")
	assert.True(t, strings.Contains(ir, "then:"))
	assert.True(t, strings.Contains(ir, "else:"))
	assert.True(t, strings.Contains(ir, "finally:"))
}

func TestIfWithTerminatedThenSkipsRedundantBranch(t *testing.T) {
	ir := generate(t, "int main() { if (1) { return 1; } return 0; }")
	// the then block returns directly; it must not also branch to finally
	thenIdx := strings.Index(ir, "then:")
	elseIdx := strings.Index(ir, "else:")
	require.True(t, thenIdx >= 0 && elseIdx > thenIdx)
	thenBody := ir[thenIdx:elseIdx]
	assert.Contains(t, thenBody, "ret i32 1")
	assert.NotContains(t, thenBody, "br label %finally")
}

func TestForWithEmptyClausesLoopsUnconditionally(t *testing.T) {
	ir := generate(t, "int main() { for (;;) { return 0; } }")
	assert.Contains(t, ir, "condition:")
	assert.Contains(t, ir, "br i1 true")
}

func TestStructDeclaresNamedAggregate(t *testing.T) {
	ir := generate(t, "struct P { int x; int y; }; int main() { struct P q; return 0; }")
	assert.Contains(t, ir, "%P = type { i32, i32 }")
}

func TestTypedefAliasResolvesToUnderlyingType(t *testing.T) {
	ir := generate(t, "typedef int Int32; int main() { Int32 x; x = 1; return x; }")
	assert.Contains(t, ir, "alloca i32")
}

func TestLoggerTracesStringAndAllocaMaterialization(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	toks, err := lexer.New(`int main() { int x; return 0; }`).Tokenize()
	require.NoError(t, err)
	root, err := parser.New(toks).ParseProgram()
	require.NoError(t, err)
	_, err = codegen.New(codegen.WithLogger(log)).Generate(root)
	require.NoError(t, err)

	messages := make([]string, logs.Len())
	for i, entry := range logs.All() {
		messages[i] = entry.Message
	}
	assert.Contains(t, messages, "materialized stack allocation")

	toks, err = lexer.New(`char *greet() { return "hi"; }`).Tokenize()
	require.NoError(t, err)
	root, err = parser.New(toks).ParseProgram()
	require.NoError(t, err)
	logs.TakeAll()
	_, err = codegen.New(codegen.WithLogger(log)).Generate(root)
	require.NoError(t, err)

	messages = nil
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "materialized global string constant")
}
