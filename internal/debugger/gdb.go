package debugger

import (
	"context"
	"fmt"
	"os/exec"
	"text/template"
)

const gdbAgentTemplate = `
import json
import os
import re
import socket

import gdb

sock = socket.socket(socket.AF_UNIX, socket.SOCK_STREAM)
sock.connect({{.Sock | printf "%q"}})
stream = sock.makefile("rw")

gdb.execute("set pagination off")
gdb.execute("set confirm off")
gdb.execute("set breakpoint pending on")

last_stop = {"reason": "stopped"}
logical = {}  # gdb breakpoint number -> harness breakpoint id
next_id = [0]

def on_stop(event):
	global last_stop
	if isinstance(event, gdb.BreakpointEvent):
		number = event.breakpoints[0].number
		last_stop = {"reason": "breakpoint", "breakpoint": logical.get(number, -1)}
	elif isinstance(event, gdb.SignalEvent):
		last_stop = {"reason": "signal", "detail": event.stop_signal}
	else:
		last_stop = {"reason": "stopped"}

def on_exit(event):
	global last_stop
	status = 0
	if hasattr(event, "exit_code"):
		status = event.exit_code
	last_stop = {"reason": "exited", "status": status}

gdb.events.stop.connect(on_stop)
gdb.events.exited.connect(on_exit)

def reply(req, **fields):
	fields["id"] = req.get("id")
	stream.write(json.dumps(fields) + "\n")
	stream.flush()

def resolve_lines(path, pattern):
	regex = re.compile(pattern)
	with open(path) as f:
		return [i + 1 for i, text in enumerate(f) if regex.search(text)]

{{template "gdb-locations"}}
def resume(command):
	global last_stop
	last_stop = {"reason": "stopped"}
	gdb.execute(command, to_string=True)
	return last_stop

for line in stream:
	req = json.loads(line)
	op = req.get("op")
	try:
		if op == "target":
			gdb.execute("file " + req["path"], to_string=True)
			reply(req, ok=True)
		elif op == "breakpoint":
			next_id[0] += 1
			if req.get("pattern"):
				lines = resolve_lines(req.get("path") or req["file"], req["pattern"])
			else:
				lines = [req["line"]]
			name = os.path.basename(req["file"])
			total = 0
			for lineno in lines:
				bp = gdb.Breakpoint("%s:%d" % (name, lineno))
				logical[bp.number] = next_id[0]
				total += resolved_locations(bp)
			reply(req, ok=True, breakpoint=next_id[0], locations=total)
		elif op == "launch":
			reply(req, ok=True, stop=resume("run"))
		elif op == "continue":
			reply(req, ok=True, stop=resume("continue"))
		elif op == "evaluate" or op == "command":
			text = req["text"]
			if op == "evaluate":
				text = "print " + text
			try:
				out = gdb.execute(text, to_string=True)
				reply(req, ok=True, succeeded=True, output=out)
			except gdb.error as e:
				reply(req, ok=True, succeeded=False, output=str(e) + "\n")
		elif op == "quit":
			reply(req, ok=True)
			break
		else:
			reply(req, ok=False, error="unknown op " + str(op))
	except Exception as e:
		reply(req, ok=False, error=str(e))

try:
	gdb.execute("kill", to_string=True)
except gdb.error:
	pass
`

// gdbLocationsTemplate counts the addresses gdb resolved for one
// breakpoint. A pending breakpoint has none. gdb before 13 has no
// Breakpoint.locations and counts as one location once it is not pending.
const gdbLocationsTemplate = `{{define "gdb-locations"}}
def resolved_locations(bp):
	if getattr(bp, "pending", False):
		return 0
	locations = getattr(bp, "locations", None)
	if locations is None:
		return 1
	return len(locations)
{{end}}`

var gdbAgent = template.Must(template.Must(template.New("gdb-agent").Parse(gdbLocationsTemplate)).Parse(gdbAgentTemplate))

// GDB drives gdb through its embedded Python interpreter.
type GDB struct {
	cfg  Config
	path string
}

// NewGDB returns a gdb backend.
func NewGDB(cfg Config) *GDB {
	return &GDB{cfg: cfg}
}

func (g *GDB) Name() string            { return "gdb" }
func (g *GDB) RegisterPattern() string { return GDBRegisterPattern }

func (g *GDB) Probe() error {
	path := g.cfg.Path
	if path == "" {
		path = "gdb"
	}
	path, err := exec.LookPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	g.path = path
	return nil
}

func (g *GDB) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	if g.path == "" {
		if err := g.Probe(); err != nil {
			return nil, err
		}
	}
	return openAgent(ctx, g.Name(), gdbAgent, g.cfg, opts, func(scriptPath string) (*exec.Cmd, error) {
		return exec.Command(g.path,
			"--batch",
			"--nx", // ignore .gdbinit
			"--quiet",
			"-x", scriptPath,
		), nil
	})
}
