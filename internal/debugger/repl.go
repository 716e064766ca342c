package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultREPLPrompt matches the numbered Swift REPL prompt ("  1> ").
// A prompt pattern with an "n" group is numbered: after an input of k
// lines only the prompt numbered k past the previous one ends the reply.
const DefaultREPLPrompt = `(?m)^\s*(?P<n>[0-9]+)>\s?$`

// continuationPrompt matches the prompts a REPL prints while reading a
// multi-line input ("  2. ").
var continuationPrompt = regexp.MustCompile(`(?m)^\s*[0-9]+\.\s`)

// REPL drives an interactive read-eval-print loop over pipes. Each input
// is written on stdin; its output is everything printed up to the next
// primary prompt.
type REPL struct {
	cfg    Config
	prompt *regexp.Regexp
}

// NewREPL returns a REPL backend. An invalid Prompt falls back to
// DefaultREPLPrompt and is reported by Probe.
func NewREPL(cfg Config) *REPL {
	if len(cfg.Command) == 0 {
		cfg.Command = []string{"lldb", "--repl"}
	}
	prompt, err := regexp.Compile(cfg.Prompt)
	if cfg.Prompt == "" || err != nil {
		prompt = regexp.MustCompile(DefaultREPLPrompt)
	}
	return &REPL{cfg: cfg, prompt: prompt}
}

func (r *REPL) Name() string            { return "repl" }
func (r *REPL) RegisterPattern() string { return LLDBRegisterPattern }

func (r *REPL) Probe() error {
	if r.cfg.Prompt != "" {
		if _, err := regexp.Compile(r.cfg.Prompt); err != nil {
			return fmt.Errorf("invalid REPL prompt %q: %w", r.cfg.Prompt, err)
		}
	}
	if _, err := exec.LookPath(r.cfg.Command[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *REPL) Open(ctx context.Context, opts SessionOptions) (Session, error) {
	if err := r.Probe(); err != nil {
		return nil, err
	}
	cmd := exec.Command(r.cfg.Command[0], r.cfg.Command[1:]...)
	cmd.Dir = opts.WorkDir
	cmd.Env = append(os.Environ(), r.cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start repl: %w", err)
	}
	pw.Close()

	s := &replSession{
		cmd:    cmd,
		stdin:  stdin,
		prompt: r.prompt,
		number: r.prompt.SubexpIndex("n"),
		chunks: make(chan string, 64),
		exited: make(chan struct{}),
		logger: r.cfg.logger().With("debugger", "repl"),
		echo:   r.cfg.Output,
	}
	go s.pump(pr)
	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	startCtx, cancel := context.WithTimeout(ctx, r.cfg.startTimeout())
	defer cancel()
	if _, err := s.readUntilPrompt(startCtx, 0); err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for repl prompt: %w", err)
	}
	return s, nil
}

type replSession struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	prompt  *regexp.Regexp
	number  int // index of the prompt number group, -1 if unnumbered
	last    int // number of the last prompt seen
	chunks  chan string
	pending strings.Builder
	exited  chan struct{}
	broken  bool
	logger  *slog.Logger
	echo    io.Writer

	closeOnce sync.Once
}

func (s *replSession) pump(r io.ReadCloser) {
	defer r.Close()
	defer close(s.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.chunks <- string(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// readUntilPrompt collects output until the primary prompt ends the
// buffer, and returns the text before the prompt. want is the expected
// prompt number; zero accepts any prompt. Prompt-like lines printed by the
// evaluation itself carry the wrong number and stay in the output.
func (s *replSession) readUntilPrompt(ctx context.Context, want int) (string, error) {
	for {
		text := s.pending.String()
		if locs := s.prompt.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
			loc := locs[len(locs)-1]
			if strings.TrimSpace(text[loc[1]:]) == "" {
				if n, ok := s.promptNumber(text, loc); ok || s.number < 0 {
					if want == 0 || s.number < 0 || n == want {
						s.last = n
						s.pending.Reset()
						return continuationPrompt.ReplaceAllString(text[:loc[0]], ""), nil
					}
				}
			}
		}
		select {
		case chunk, ok := <-s.chunks:
			if !ok {
				return text, fmt.Errorf("repl exited")
			}
			if s.echo != nil {
				io.WriteString(s.echo, chunk)
			}
			s.pending.WriteString(chunk)
		case <-ctx.Done():
			return text, ctx.Err()
		}
	}
}

func (s *replSession) promptNumber(text string, loc []int) (int, bool) {
	if s.number < 0 || loc[2*s.number] < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(text[loc[2*s.number]:loc[2*s.number+1]])
	return n, err == nil
}

func (s *replSession) send(ctx context.Context, input string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return Reply{}, ErrSessionBroken
	}
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	if _, err := io.WriteString(s.stdin, input); err != nil {
		s.broken = true
		return Reply{}, fmt.Errorf("write repl input: %w", err)
	}
	want := 0
	if s.number >= 0 {
		want = s.last + strings.Count(input, "\n")
	}
	out, err := s.readUntilPrompt(ctx, want)
	if err != nil {
		s.broken = true
		return Reply{Output: out}, err
	}
	return Reply{Output: out, Succeeded: !strings.Contains(out, "error:")}, nil
}

func (s *replSession) Evaluate(ctx context.Context, expr string) (Reply, error) {
	return s.send(ctx, expr)
}

func (s *replSession) Command(ctx context.Context, command string) (Reply, error) {
	return s.send(ctx, command)
}

func (s *replSession) CreateTarget(context.Context, string) error {
	return fmt.Errorf("repl target: %w", ErrUnsupported)
}

func (s *replSession) CreateBreakpoint(context.Context, BreakpointSpec) (Breakpoint, error) {
	return Breakpoint{}, fmt.Errorf("repl breakpoint: %w", ErrUnsupported)
}

func (s *replSession) Launch(context.Context) (Stop, error) {
	return Stop{}, fmt.Errorf("repl launch: %w", ErrUnsupported)
}

func (s *replSession) Continue(context.Context) (Stop, error) {
	return Stop{}, fmt.Errorf("repl continue: %w", ErrUnsupported)
}

// Close closes stdin, which ends the REPL, and kills it if it does not
// exit promptly.
func (s *replSession) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.stdin.Close()
		select {
		case <-s.exited:
		case <-time.After(2 * time.Second):
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				closeErr = fmt.Errorf("kill repl: %w", err)
			}
			<-s.exited
		}
		go func() {
			for range s.chunks {
			}
		}()
	})
	return closeErr
}
