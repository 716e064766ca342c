package debugger

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
)

const lldbAgentTemplate = `
import json
import os
import socket
import sys

import lldb

sock = socket.socket(socket.AF_UNIX, socket.SOCK_STREAM)
sock.connect({{.Sock | printf "%q"}})
stream = sock.makefile("rw")

debugger = lldb.SBDebugger.Create()
debugger.SkipLLDBInitFiles(True)
debugger.SetAsync(False)  # block until each command completes
interp = debugger.GetCommandInterpreter()

target = None
process = None

def reply(req, **fields):
	fields["id"] = req.get("id")
	stream.write(json.dumps(fields) + "\n")
	stream.flush()

def stop_info():
	if process is None or not process.IsValid():
		return {"reason": "exited", "status": 0}
	state = process.GetState()
	if state == lldb.eStateExited:
		return {"reason": "exited", "status": process.GetExitStatus()}
	if state != lldb.eStateStopped:
		return {"reason": "stopped", "detail": lldb.SBDebugger.StateAsCString(state)}
	for thread in process:
		reason = thread.GetStopReason()
		if reason == lldb.eStopReasonBreakpoint:
			process.SetSelectedThread(thread)
			return {"reason": "breakpoint", "breakpoint": thread.GetStopReasonDataAtIndex(0)}
		if reason == lldb.eStopReasonSignal:
			return {"reason": "signal", "detail": str(thread.GetStopReasonDataAtIndex(0))}
	return {"reason": "stopped"}

def run_command(text):
	ret = lldb.SBCommandReturnObject()
	interp.HandleCommand(text, ret)
	out = (ret.GetOutput() or "") + (ret.GetError() or "")
	return ret.Succeeded(), out

for line in stream:
	req = json.loads(line)
	op = req.get("op")
	try:
		if op == "target":
			target = debugger.CreateTarget(req["path"])
			if not target:
				reply(req, ok=False, error="failed to create target for " + req["path"])
				continue
			reply(req, ok=True)
		elif op == "breakpoint":
			if target is None:
				reply(req, ok=False, error="no target")
				continue
			if req.get("pattern"):
				bp = target.BreakpointCreateBySourceRegex(req["pattern"], lldb.SBFileSpec(req["file"]))
			else:
				bp = target.BreakpointCreateByLocation(req["file"], req["line"])
			reply(req, ok=True, breakpoint=bp.GetID(), locations=bp.GetNumLocations())
		elif op == "launch":
			process = target.LaunchSimple(None, None, os.getcwd())
			if not process:
				reply(req, ok=False, error="failed to launch process")
				continue
			reply(req, ok=True, stop=stop_info())
		elif op == "continue":
			if process is None:
				reply(req, ok=False, error="process not launched")
				continue
			process.Continue()
			reply(req, ok=True, stop=stop_info())
		elif op == "evaluate":
			ok, out = run_command("expression -- " + req["text"])
			reply(req, ok=True, succeeded=ok, output=out)
		elif op == "command":
			ok, out = run_command(req["text"])
			reply(req, ok=True, succeeded=ok, output=out)
		elif op == "quit":
			reply(req, ok=True)
			break
		else:
			reply(req, ok=False, error="unknown op " + str(op))
	except Exception as e:
		reply(req, ok=False, error=str(e))

if process is not None and process.IsValid():
	process.Kill()
lldb.SBDebugger.Destroy(debugger)
`

var lldbAgent = template.Must(template.New("lldb-agent").Parse(lldbAgentTemplate))

// LLDB drives lldb through its Python module.
type LLDB struct {
	cfg Config

	path      string // lldb executable
	python    string // python interpreter
	pythonMod string // directory of the lldb python module
}

// NewLLDB returns an lldb backend. Call Probe before Open.
func NewLLDB(cfg Config) *LLDB {
	return &LLDB{cfg: cfg}
}

func (l *LLDB) Name() string            { return "lldb" }
func (l *LLDB) RegisterPattern() string { return LLDBRegisterPattern }

// Probe locates lldb, a python interpreter and the lldb python module.
func (l *LLDB) Probe() error {
	path := l.cfg.Path
	if path == "" {
		path = "lldb"
	}
	path, err := exec.LookPath(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.path = path

	python := l.cfg.Python
	if python == "" {
		python = "python3"
	}
	python, err = exec.LookPath(python)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.python = python

	out := new(bytes.Buffer)
	cmd := exec.Command(l.path, "-P")
	cmd.Stdout = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: lldb -P: %v", ErrUnavailable, err)
	}
	l.pythonMod = strings.TrimSpace(out.String())
	return nil
}

func (l *LLDB) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	if l.python == "" {
		if err := l.Probe(); err != nil {
			return nil, err
		}
	}
	return openAgent(ctx, l.Name(), lldbAgent, l.cfg, opts, func(scriptPath string) (*exec.Cmd, error) {
		cmd := exec.Command(l.python, scriptPath)
		cmd.Env = []string{"PYTHONPATH=" + l.pythonMod}
		return cmd, nil
	})
}
