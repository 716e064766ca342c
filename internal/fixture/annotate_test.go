package fixture

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnotations(t *testing.T) {
	filename := "testdata/parsable.go"
	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	anns, err := ParseAnnotations(f, filename)
	require.NoError(t, err)

	want := []Annotation{
		{File: filename, Line: 12, Tests: []AnnotatedTest{
			{Line: 5, Debugger: "gdb", Command: "cmd1", Want: []string{"want1"}},
			{Line: 7, Debugger: "gdb", Command: "cmd2", Want: []string{"want2a", "want2b"}},
			{Line: 10, Debugger: "lldb", Command: "cmd3", Want: []string{"want3"}},
		}},
		{File: filename, Line: 23, Tests: []AnnotatedTest{
			{Line: 16, Debugger: "gdb", Command: "cmd4", Want: []string{"want4a", "want4b"}},
		}},
	}
	assert.Equal(t, want, anns)
}

func TestAnnotationFor(t *testing.T) {
	ann := Annotation{Tests: []AnnotatedTest{
		{Debugger: "gdb", Command: "print i"},
		{Debugger: "lldb", Command: "frame variable i"},
	}}

	lldb := ann.For("lldb")
	require.Len(t, lldb, 1)
	assert.Equal(t, "frame variable i", lldb[0].Command)
	assert.Empty(t, ann.For("repl"))
}

func TestParseAnnotations_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "regex before command",
			input: "// BREAKPOINT\n// \\$1 = 5\nx := 1\n",
			want:  "expected (gdb) or (lldb) command",
		},
		{
			name:  "no commands",
			input: "// BREAKPOINT\nx := 1\n",
			want:  "breakpoint has no commands",
		},
		{
			name:  "unterminated",
			input: "x := 1\n// BREAKPOINT\n// (lldb) p x\n",
			want:  "at end of file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAnnotations(strings.NewReader(tt.input), "main.go")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAnnotations_CommandWithoutWant(t *testing.T) {
	input := "// BREAKPOINT\n// (lldb) frame variable\n_ = 0\n"
	anns, err := ParseAnnotations(strings.NewReader(input), "main.go")
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, 3, anns[0].Line)
	assert.Empty(t, anns[0].Tests[0].Want)
}
