// Package harness runs debugger conformance scenarios.
//
// A scenario builds a fixture program, drives a debugger session through
// an ordered list of steps and checks each step's textual output against
// expected patterns.
//
// # Scenario Format
//
// Scenarios are YAML (or CUE) files:
//
//	name: generic_struct_print
//	description: "frame variable prints generic struct fields"
//	fixture:
//	  sources: [main.swift]
//	  build: "swiftc -g -Onone -o {{.Output}} {{.Sources}}"
//	breakpoints:
//	  - {name: first, file: main.swift, pattern: "// break here"}
//	steps:
//	  - run: first
//	  - command: "frame variable bar"
//	    expect: {substrs: ["42"]}
//	  - evaluate: "bar"
//	    bind: bar
//	    expect: {patterns: ['\$R0']}
//	  - evaluate: "${bar}"
//	    expect: {registers: [bar]}
//
// # Step Kinds
//
//   - run: resume until the named breakpoint (the first run launches)
//   - evaluate: evaluate an expression, or send REPL input
//   - command: issue a raw debugger command
//   - breakpoint: create a breakpoint mid-session
//
// # Matching
//
// Patterns are RE2 expressions searched for anywhere in the output. Within
// a step they may match in any order unless ordered is set, in which case
// each pattern must match after the previous one. An empty expectation
// always matches.
//
// # Result Registers
//
// Every evaluate and command output is scanned for result registers ($R0,
// $1, ...). Bindings are append-only for the life of the run. A step's bind
// names its first register, and later steps write ${alias} to refer to it.
//
// # Outcomes
//
// Conditions on a scenario or step skip it on unsupported hosts or mark it
// as an expected failure. A run ends as passed, failed, skipped,
// expected_failure or unexpected_success; only failed counts against the
// runner.
package harness
