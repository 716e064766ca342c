package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgconform/internal/debugger"
)

func newLLDBRegisters(t *testing.T) *registerFile {
	t.Helper()
	regs, err := newRegisterFile(debugger.LLDBRegisterPattern)
	require.NoError(t, err)
	return regs
}

const nestedOutput = `(Test) $R0 = {
  a = 2 values {
    [0] = 1
    [1] = 2
  }
  b = 0 values {}
}
`

func TestMatch_Unordered(t *testing.T) {
	exp, err := resolveExpect(Expect{Patterns: []string{`b = 0 values`, `a = 2 values`}}, newLLDBRegisters(t))
	require.NoError(t, err)
	assert.Nil(t, exp.match(0, "", nestedOutput))
}

func TestMatch_Ordered(t *testing.T) {
	regs := newLLDBRegisters(t)

	inOrder, err := resolveExpect(Expect{Ordered: true, Patterns: []string{`a = 2 values`, `\[1\] = 2`, `b = 0`}}, regs)
	require.NoError(t, err)
	assert.Nil(t, inOrder.match(0, "", nestedOutput))

	reversed, err := resolveExpect(Expect{Ordered: true, Patterns: []string{`b = 0`, `a = 2 values`}}, regs)
	require.NoError(t, err)
	mismatch := reversed.match(3, "nested", nestedOutput)
	require.NotNil(t, mismatch)
	assert.Equal(t, "pattern", mismatch.Kind)
	assert.Equal(t, `a = 2 values`, mismatch.Pattern)
	assert.Equal(t, 3, mismatch.Step)
	assert.Equal(t, nestedOutput, mismatch.Output)
}

func TestMatch_SearchNotAnchored(t *testing.T) {
	exp, err := resolveExpect(Expect{Patterns: []string{`\[0\] = 1`}}, newLLDBRegisters(t))
	require.NoError(t, err)
	assert.Nil(t, exp.match(0, "", nestedOutput))
}

func TestMatch_Substrs(t *testing.T) {
	exp, err := resolveExpect(Expect{Substrs: []string{"[0] = 1", "c = "}}, newLLDBRegisters(t))
	require.NoError(t, err)
	mismatch := exp.match(0, "", nestedOutput)
	require.NotNil(t, mismatch)
	assert.Equal(t, "substr", mismatch.Kind)
	assert.Equal(t, "c = ", mismatch.Pattern)
}

func TestMatch_RegisterValues(t *testing.T) {
	regs := newLLDBRegisters(t)
	captured, err := regs.capture(0, "$R0: String = \"hello\"\n")
	require.NoError(t, err)
	_, err = regs.bind("greeting", captured)
	require.NoError(t, err)

	exp, err := resolveExpect(Expect{Registers: []string{"greeting"}}, regs)
	require.NoError(t, err)
	assert.Nil(t, exp.match(1, "", "$R1: String = \"hello\"\n"))

	mismatch := exp.match(1, "", "$R1: String = \"bye\"\n")
	require.NotNil(t, mismatch)
	assert.Equal(t, "register", mismatch.Kind)
	assert.Equal(t, `${greeting} = "hello"`, mismatch.Pattern)
}

func TestResolveExpect_ExpandsAliasQuoted(t *testing.T) {
	regs := newLLDBRegisters(t)
	captured, err := regs.capture(0, "$R0: Int = 5\n")
	require.NoError(t, err)
	_, err = regs.bind("sum", captured)
	require.NoError(t, err)

	exp, err := resolveExpect(Expect{Patterns: []string{`^${sum}:`}}, regs)
	require.NoError(t, err)
	assert.Equal(t, `^\$R0:`, exp.patterns[0].String())
	assert.Nil(t, exp.match(0, "", "$R0: Int = 5"))
	assert.NotNil(t, exp.match(0, "", "R0: Int = 5"))
}

func TestResolveExpect_UnboundAlias(t *testing.T) {
	_, err := resolveExpect(Expect{Patterns: []string{`${nope}`}}, newLLDBRegisters(t))
	assert.True(t, IsRegisterError(err))

	_, err = resolveExpect(Expect{Registers: []string{"nope"}}, newLLDBRegisters(t))
	assert.True(t, IsRegisterError(err))
}

func TestExpectationDiff(t *testing.T) {
	diff := expectationDiff([]string{`\$R0: Int = 5`}, []string{"done"}, "$R0: Int = 6\n")
	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "+++ output")
	assert.Contains(t, diff, `-\$R0: Int = 5`)
	assert.Contains(t, diff, "-done")
	assert.Contains(t, diff, "+$R0: Int = 6")
}
