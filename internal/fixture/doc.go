// Package fixture builds the small programs a scenario debugs.
//
// A fixture is a set of source files plus a build command. The builder
// stages the sources into a work directory, renders the command from a
// template and runs it in a local shell session:
//
//	fixture:
//	  sources: [Bar.swift, Foo.swift, main.swift]
//	  build: "swiftc -g -Onone -o {{.Output}} {{.Sources}}"
//
// When build is empty the command is chosen from the source extension
// (.go, .swift, .c, .cpp). A prebuilt executable skips the build.
//
// The package also parses inline test annotations from fixture sources:
//
//	i := 5
//	// BREAKPOINT
//	// (gdb) print i
//	// \$[0-9]+ = 5
//	// (lldb) frame variable i
//	// \(int\) i = 5
//	_ = i
//
// A comment group starting with "// BREAKPOINT" places a breakpoint at the
// next line of code. "(gdb)" and "(lldb)" prefixes select the debugger a
// command runs under; the lines after a command are regular expressions
// its output must match, in order. /* */ comments are ignored.
package fixture
