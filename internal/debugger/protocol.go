package debugger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// AgentError is a failure reported by a debugger agent for one request.
type AgentError struct {
	Op      string
	Message string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s failed: %s", e.Op, e.Message)
}

// agentConn is the harness side of the JSON-lines agent protocol.
// Requests are strictly sequential; every request gets exactly one reply
// carrying the same id.
type agentConn struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	seq    int64
	broken bool
}

func newAgentConn(conn net.Conn) *agentConn {
	return &agentConn{conn: conn, r: bufio.NewReader(conn)}
}

// encodeRequest builds {"id":id,"op":op,...fields} with fields in key order.
func encodeRequest(id int64, op string, fields map[string]any) ([]byte, error) {
	req, err := sjson.SetBytes([]byte(`{}`), "id", id)
	if err != nil {
		return nil, err
	}
	if req, err = sjson.SetBytes(req, "op", op); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if req, err = sjson.SetBytes(req, k, fields[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	return append(req, '\n'), nil
}

// call sends one request and waits for its reply. The wait is bounded by
// ctx; a reply that does not arrive in time breaks the connection because
// a late reply would desynchronize the stream.
func (c *agentConn) call(ctx context.Context, op string, fields map[string]any) (gjson.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return gjson.Result{}, ErrSessionBroken
	}
	c.seq++
	req, err := encodeRequest(c.seq, op, fields)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode %s request: %w", op, err)
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return gjson.Result{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := c.conn.Write(req); err != nil {
		c.broken = true
		return gjson.Result{}, c.wrap(ctx, op, err)
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.broken = true
		return gjson.Result{}, c.wrap(ctx, op, err)
	}

	res := gjson.ParseBytes(line)
	if got := res.Get("id").Int(); got != c.seq {
		c.broken = true
		return gjson.Result{}, fmt.Errorf("agent %s: reply id %d, want %d", op, got, c.seq)
	}
	if !res.Get("ok").Bool() {
		return res, &AgentError{Op: op, Message: res.Get("error").String()}
	}
	return res, nil
}

func (c *agentConn) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("agent %s: %w", op, ctxErr)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("agent %s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("agent %s: %w", op, err)
}

func (c *agentConn) close() error {
	return c.conn.Close()
}

// decodeStop reads the "stop" object of a launch or continue reply.
func decodeStop(res gjson.Result) Stop {
	stop := res.Get("stop")
	return Stop{
		Reason:       StopReason(stop.Get("reason").String()),
		BreakpointID: int(stop.Get("breakpoint").Int()),
		ExitStatus:   int(stop.Get("status").Int()),
		Detail:       stop.Get("detail").String(),
	}
}

// decodeReply reads the output of an evaluate or command reply.
func decodeReply(res gjson.Result) Reply {
	return Reply{
		Output:    res.Get("output").String(),
		Succeeded: res.Get("succeeded").Bool(),
	}
}
