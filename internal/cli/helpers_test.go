package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgconform/internal/testutil"
)

const intVarsScenario = `name: repl_int_vars
description: "basic integer arithmetic works in the REPL"
tags: [repl]
steps:
  - evaluate: "3 + 2"
    bind: sum
    expect: {patterns: ['\$R0: Int = 5']}
  - evaluate: "${sum} + 5"
    expect: {patterns: ['\$R1: Int = 10']}
`

const stringsScenario = `name: repl_strings
description: "string literals print quoted"
tags: [strings]
steps:
  - evaluate: '"hi"'
    expect: {substrs: ['String = "hi"']}
`

const intVarsReplay = `outputs:
  "3 + 2": "$R0: Int = 5\n"
  "$R0 + 5": "$R1: Int = 10\n"
  '"hi"': "$R2: String = \"hi\"\n"
`

const wrongReplay = `outputs:
  "3 + 2": "$R0: Int = 5\n"
  "$R0 + 5": "$R1: Int = 11\n"
  '"hi"': "$R2: String = \"hi\"\n"
`

// scenarioTree writes two scenarios and both replay files, returning the
// scenarios directory and the tree root.
func scenarioTree(t *testing.T) (scenarios, root string) {
	t.Helper()
	root = testutil.WriteTree(t, map[string]string{
		"scenarios/int_vars.yaml": intVarsScenario,
		"scenarios/strings.yaml":  stringsScenario,
		"replays/good.yaml":       intVarsReplay,
		"replays/wrong.yaml":      wrongReplay,
	})
	return root + "/scenarios", root
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCmd(t, NewRootCommand(), args...)
}

func executeCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
