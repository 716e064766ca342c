package main

func main() {
	// BREAKPOINT
	// (gdb) cmd1
	// want1
	// (gdb) cmd2
	// want2a
	// want2b
	// (lldb) cmd3
	// want3
	x := 1

	// BREAKPOINT
	/* single line comment */
	// (gdb) cmd4
	/*
	   multi-line
	   comment
	*/
	// want4a
	// want4b
	_ = x
}
