package debugger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openScripted(t *testing.T, s *Scripted) Session {
	t.Helper()
	sess, err := s.Open(context.Background(), SessionOptions{WorkDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestScripted_StopsAtBreakpointsInOrder(t *testing.T) {
	ctx := context.Background()
	s := &Scripted{}
	sess := openScripted(t, s)

	require.NoError(t, sess.CreateTarget(ctx, "/tmp/a.out"))
	first, err := sess.CreateBreakpoint(ctx, BreakpointSpec{Name: "first", File: "main.swift", Pattern: "first"})
	require.NoError(t, err)
	second, err := sess.CreateBreakpoint(ctx, BreakpointSpec{Name: "second", File: "main.swift", Line: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Locations)

	stop, err := sess.Launch(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stop{Reason: StopBreakpoint, BreakpointID: first.ID}, stop)

	stop, err = sess.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stop.BreakpointID)

	stop, err = sess.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopExited, stop.Reason)

	_, err = sess.Continue(ctx)
	assert.Error(t, err)
}

func TestScripted_UnresolvedBreakpointIsSkipped(t *testing.T) {
	ctx := context.Background()
	sess := openScripted(t, &Scripted{Locations: map[string]int{"typo": 0}})

	bp, err := sess.CreateBreakpoint(ctx, BreakpointSpec{Name: "typo"})
	require.NoError(t, err)
	assert.Zero(t, bp.Locations)

	stop, err := sess.Launch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopExited, stop.Reason)
}

func TestScripted_ExplicitStops(t *testing.T) {
	ctx := context.Background()
	sess := openScripted(t, &Scripted{Stops: []string{"other", "exit"}})
	_, err := sess.CreateBreakpoint(ctx, BreakpointSpec{Name: "first"})
	require.NoError(t, err)

	stop, err := sess.Launch(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopOther, stop.Reason)
	assert.Equal(t, "stopped (stopped at other)", stop.String())

	stop, err = sess.Continue(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopExited, stop.Reason)
}

func TestScripted_Replies(t *testing.T) {
	ctx := context.Background()
	sess := openScripted(t, &Scripted{
		Outputs:  map[string]string{"1 + 1": "$R0: Int = 2\n", "bogus": "error: bogus\n"},
		Failures: []string{"bogus"},
	})

	reply, err := sess.Evaluate(ctx, "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, Reply{Output: "$R0: Int = 2\n", Succeeded: true}, reply)

	reply, err = sess.Command(ctx, "bogus")
	require.NoError(t, err)
	assert.False(t, reply.Succeeded)

	reply, err = sess.Evaluate(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, reply.Succeeded)
	assert.Contains(t, reply.Output, `no scripted reply for "missing"`)
}

func TestScripted_HangHonoursContext(t *testing.T) {
	sess := openScripted(t, &Scripted{Hang: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sess.Launch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScripted_CountsSessions(t *testing.T) {
	s := &Scripted{}
	sess, err := s.Open(context.Background(), SessionOptions{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Opened())
	assert.EqualValues(t, 0, s.Closed())

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.EqualValues(t, 1, s.Closed())

	_, err = sess.Evaluate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSessionBroken)
}

func TestScripted_Unavailable(t *testing.T) {
	s := &Scripted{Unavailable: true}
	assert.ErrorIs(t, s.Probe(), ErrUnavailable)
	_, err := s.Open(context.Background(), SessionOptions{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, s.Opened())
}

func TestScripted_REPLOnly(t *testing.T) {
	sess := openScripted(t, &Scripted{REPLOnly: true, Outputs: map[string]string{"1 + 1": "$R0: Int = 2\n"}})
	ctx := context.Background()

	assert.ErrorIs(t, sess.CreateTarget(ctx, "a.out"), ErrUnsupported)
	_, err := sess.CreateBreakpoint(ctx, BreakpointSpec{Name: "bp", File: "main.swift", Line: 3})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = sess.Launch(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)

	reply, err := sess.Evaluate(ctx, "1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "$R0: Int = 2\n", reply.Output)
}

func TestLoadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
outputs:
  "p x": "$R0: Int = 5\n"
failures: ["p y"]
locations:
  missing: 0
register_pattern: '(?P<name>\$[0-9]+) = (?P<value>.*)'
`), 0o644))

	s, err := LoadReplay(path)
	require.NoError(t, err)
	assert.Equal(t, "$R0: Int = 5\n", s.Outputs["p x"])
	assert.Equal(t, []string{"p y"}, s.Failures)
	assert.Equal(t, 0, s.Locations["missing"])
	assert.Equal(t, `(?P<name>\$[0-9]+) = (?P<value>.*)`, s.RegisterPattern())
}

func TestLoadReplay_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outputz: {}\n"), 0o644))

	_, err := LoadReplay(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outputz")
}
