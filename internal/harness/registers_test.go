package harness

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgconform/internal/debugger"
)

func TestRegisterFile_Capture(t *testing.T) {
	regs := newLLDBRegisters(t)

	captured, err := regs.capture(0, "$R0: Int = 5\n(Int) $R1 = 7  \r\n")
	require.NoError(t, err)
	assert.Equal(t, []RegisterBinding{
		{Name: "$R0", Value: "5", Step: 0},
		{Name: "$R1", Value: "7", Step: 0},
	}, captured)

	captured, err = regs.capture(1, "no registers here")
	require.NoError(t, err)
	assert.Empty(t, captured)
	assert.Len(t, regs.all(), 2)
}

func TestRegisterFile_RepeatWithinOutput(t *testing.T) {
	regs := newLLDBRegisters(t)
	captured, err := regs.capture(0, "$R0: Int = 5\n$R0: Int = 5\n")
	require.NoError(t, err)
	assert.Len(t, captured, 1)
}

func TestRegisterFile_AppendOnly(t *testing.T) {
	regs := newLLDBRegisters(t)
	_, err := regs.capture(0, "$R0: Int = 5\n")
	require.NoError(t, err)

	_, err = regs.capture(1, "$R0: Int = 6\n")
	var regErr *RegisterError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "$R0", regErr.Name)
	assert.Contains(t, regErr.Reason, "append-only")

	assert.Equal(t, []RegisterBinding{{Name: "$R0", Value: "5", Step: 0}}, regs.all())
}

func TestRegisterFile_Bind(t *testing.T) {
	regs := newLLDBRegisters(t)

	_, err := regs.bind("none", nil)
	assert.True(t, IsRegisterError(err))

	captured, err := regs.capture(0, "$R0: Int = 5\n$R1: Int = 6\n")
	require.NoError(t, err)
	b, err := regs.bind("sum", captured)
	require.NoError(t, err)
	assert.Equal(t, RegisterBinding{Name: "$R0", Value: "5", Alias: "sum", Step: 0}, b)

	_, err = regs.bind("sum", captured)
	assert.True(t, IsRegisterError(err))

	got, err := regs.lookup("sum")
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestRegisterFile_Expand(t *testing.T) {
	regs := newLLDBRegisters(t)
	captured, err := regs.capture(0, "$R0: Int = 5\n")
	require.NoError(t, err)
	_, err = regs.bind("sum", captured)
	require.NoError(t, err)

	out, err := regs.expand("${sum} + ${sum}", identity)
	require.NoError(t, err)
	assert.Equal(t, "$R0 + $R0", out)

	out, err = regs.expand("${sum}", regexp.QuoteMeta)
	require.NoError(t, err)
	assert.Equal(t, `\$R0`, out)

	out, err = regs.expand("${sum} ${missing}", identity)
	assert.True(t, IsRegisterError(err))
	assert.Equal(t, "$R0 ${missing}", out)
}

func TestRegisterFile_GDBPattern(t *testing.T) {
	regs, err := newRegisterFile(debugger.GDBRegisterPattern)
	require.NoError(t, err)
	captured, err := regs.capture(0, "$1 = {a = 1, b = 2}\n")
	require.NoError(t, err)
	assert.Equal(t, []RegisterBinding{{Name: "$1", Value: "{a = 1, b = 2}", Step: 0}}, captured)
}

func TestNewRegisterFile_RequiresGroups(t *testing.T) {
	_, err := newRegisterFile(`\$R[0-9]+`)
	assert.Error(t, err)
	_, err = newRegisterFile(`(`)
	assert.Error(t, err)
}
