package debugger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"text/template"
	"time"
)

// scriptContext is the data handed to agent templates.
type scriptContext struct {
	Sock string // unix socket the agent connects back to
}

// agentSession is a Session backed by a Python agent speaking the JSON
// lines protocol. The lldb and gdb backends differ only in the template
// and in how the agent process is started.
type agentSession struct {
	name     string
	dir      string
	cmd      *exec.Cmd
	listener net.Listener
	conn     *agentConn
	logger   *slog.Logger
	exited   chan struct{}
	waitErr  error

	closeOnce sync.Once
	closeErr  error
}

// launcher builds the agent process for a rendered script.
type launcher func(scriptPath string) (*exec.Cmd, error)

// openAgent renders tmpl into a fresh temp dir, starts the agent via
// launch and waits for it to connect.
func openAgent(ctx context.Context, name string, tmpl *template.Template, cfg Config, opts SessionOptions, launch launcher) (*agentSession, error) {
	dir, err := os.MkdirTemp("", "dbgconform-"+name+"-")
	if err != nil {
		return nil, fmt.Errorf("create agent dir: %w", err)
	}
	s := &agentSession{
		name:   name,
		dir:    dir,
		logger: cfg.logger().With("debugger", name),
		exited: make(chan struct{}),
	}

	sock := filepath.Join(dir, "agent.sock")
	s.listener, err = net.Listen("unix", sock)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("listen on %s: %w", sock, err)
	}

	scriptPath := filepath.Join(dir, "agent.py")
	if err := renderScript(tmpl, scriptPath, scriptContext{Sock: sock}); err != nil {
		s.cleanup()
		return nil, err
	}

	s.cmd, err = launch(scriptPath)
	if err != nil {
		s.cleanup()
		return nil, err
	}
	s.cmd.Dir = opts.WorkDir
	s.cmd.Env = append(append(os.Environ(), s.cmd.Env...), cfg.Env...)
	s.cmd.Stdout = cfg.Output
	s.cmd.Stderr = cfg.Output
	s.logger.Debug("starting agent", "cmd", s.cmd.String(), "dir", dir)
	if err := s.cmd.Start(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	go func() {
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	}()

	conn, err := s.accept(ctx, cfg.startTimeout())
	if err != nil {
		s.Close()
		return nil, err
	}
	s.conn = newAgentConn(conn)
	return s, nil
}

// accept waits for the agent to connect. It gives up when the agent
// exits, ctx is done, or the start timeout passes.
func (s *agentSession) accept(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	ul := s.listener.(*net.UnixListener)
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ul.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = ul.SetDeadline(time.Now()) })
	defer stop()

	accepted := make(chan struct{})
	defer close(accepted)
	go func() {
		select {
		case <-s.exited:
			_ = ul.SetDeadline(time.Now())
		case <-accepted:
		}
	}()

	conn, err := ul.Accept()
	if err == nil {
		return conn, nil
	}
	select {
	case <-s.exited:
		return nil, fmt.Errorf("%s agent exited before connecting: %v", s.name, s.waitErr)
	default:
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("waiting for %s agent: %w", s.name, ctx.Err())
	}
	return nil, fmt.Errorf("waiting for %s agent: %w", s.name, err)
}

func renderScript(tmpl *template.Template, path string, dot scriptContext) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create agent script: %w", err)
	}
	defer f.Close()
	if err := tmpl.Execute(f, dot); err != nil {
		return fmt.Errorf("render agent script: %w", err)
	}
	return nil
}

func (s *agentSession) CreateTarget(ctx context.Context, executable string) error {
	_, err := s.conn.call(ctx, "target", map[string]any{"path": executable})
	return err
}

func (s *agentSession) CreateBreakpoint(ctx context.Context, spec BreakpointSpec) (Breakpoint, error) {
	fields := map[string]any{"file": spec.File}
	if spec.Path != "" {
		fields["path"] = spec.Path
	}
	if spec.Pattern != "" {
		fields["pattern"] = spec.Pattern
	} else {
		fields["line"] = spec.Line
	}
	res, err := s.conn.call(ctx, "breakpoint", fields)
	if err != nil {
		return Breakpoint{}, err
	}
	return Breakpoint{
		ID:        int(res.Get("breakpoint").Int()),
		Name:      spec.Name,
		Locations: int(res.Get("locations").Int()),
	}, nil
}

func (s *agentSession) Launch(ctx context.Context) (Stop, error) {
	res, err := s.conn.call(ctx, "launch", nil)
	if err != nil {
		return Stop{}, err
	}
	return decodeStop(res), nil
}

func (s *agentSession) Continue(ctx context.Context) (Stop, error) {
	res, err := s.conn.call(ctx, "continue", nil)
	if err != nil {
		return Stop{}, err
	}
	return decodeStop(res), nil
}

func (s *agentSession) Evaluate(ctx context.Context, expr string) (Reply, error) {
	res, err := s.conn.call(ctx, "evaluate", map[string]any{"text": expr})
	if err != nil {
		return Reply{}, err
	}
	return decodeReply(res), nil
}

func (s *agentSession) Command(ctx context.Context, command string) (Reply, error) {
	res, err := s.conn.call(ctx, "command", map[string]any{"text": command})
	if err != nil {
		return Reply{}, err
	}
	return decodeReply(res), nil
}

// Close asks the agent to quit and waits briefly for it to exit. An agent
// that did not acknowledge the quit is killed immediately.
func (s *agentSession) Close() error {
	s.closeOnce.Do(func() {
		graceful := false
		if s.conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := s.conn.call(ctx, "quit", nil)
			cancel()
			if err != nil && !errors.Is(err, ErrSessionBroken) {
				s.logger.Debug("agent quit failed", "error", err)
			}
			graceful = err == nil
			s.conn.close()
		}
		if s.cmd != nil && s.cmd.Process != nil {
			grace := 5 * time.Second
			if !graceful {
				grace = 0
			}
			select {
			case <-s.exited:
			case <-time.After(grace):
				s.logger.Debug("killing agent", "pid", s.cmd.Process.Pid)
				if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
					s.closeErr = fmt.Errorf("kill %s: %w", s.name, err)
				}
				<-s.exited
			}
		}
		s.cleanup()
	})
	return s.closeErr
}

func (s *agentSession) cleanup() {
	if s.listener != nil {
		s.listener.Close()
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.logger.Debug("failed to remove agent dir", "dir", s.dir, "error", err)
	}
}
