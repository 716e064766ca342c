// Package debugger is the boundary between the harness and an external
// debugger.
//
// The harness never inspects debugger internals. It sees a Debugger, which
// opens Sessions, and a Session exposes a fixed capability set: create a
// target, create breakpoints by source pattern or line, launch, continue,
// evaluate an expression, run a raw command, and close.
//
// # Backends
//
//   - lldb: a Python agent drives the lldb SB API
//   - gdb: a Python agent runs inside gdb
//   - repl: an interactive REPL (swift repl, lldb --repl) driven over pipes
//   - scripted: canned replies, used by tests and replay files
//
// The lldb and gdb agents are rendered from templates into a per-session
// temp directory. They connect back over a unix socket and exchange one
// JSON object per line with the harness:
//
//	-> {"id":3,"op":"evaluate","text":"3 + 2"}
//	<- {"id":3,"ok":true,"succeeded":true,"output":"(Int) $R0 = 5\n"}
//
// Driving the debugger through an agent proved far more robust than
// scraping its terminal output.
package debugger
