package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/cwbudde/lensmount/internal/mount"
)

// ErrBridgeClosed is returned after the bridge process has gone away.
var ErrBridgeClosed = errors.New("bridge closed")

// bridgeRequest is one line sent to the bridge process.
type bridgeRequest struct {
	ID   int64  `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// bridgeResponse is one line read back from the bridge process.
type bridgeResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Bridge talks to an automation bridge for the external design application.
// Requests and responses are single JSON objects per line; calls are
// serialised so at most one request is in flight.
type Bridge struct {
	mu      sync.Mutex
	w       io.WriteCloser
	scanner *bufio.Scanner
	nextID  int64
	cmd     *exec.Cmd
	closed  bool
	// abandoned is set when a call gave up waiting for its response. The
	// reader still belongs to that call, so no further requests are sent.
	abandoned bool
}

type scanResult struct {
	line []byte
	err  error
}

// NewBridge speaks the bridge protocol over an existing reader and writer.
func NewBridge(r io.Reader, w io.WriteCloser) *Bridge {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Bridge{
		w:       w,
		scanner: scanner,
	}
}

// StartBridge launches the bridge command. The process is killed when ctx ends.
func StartBridge(ctx context.Context, name string, args ...string) (*Bridge, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start bridge %s: %w", name, err)
	}
	slog.Info("Started automation bridge", "command", name, "pid", cmd.Process.Pid)

	b := NewBridge(stdout, stdin)
	b.cmd = cmd
	return b, nil
}

// call sends op and decodes the result into out (which may be nil).
func (b *Bridge) call(ctx context.Context, op string, args any, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.abandoned {
		return ErrBridgeClosed
	}

	b.nextID++
	req := bridgeRequest{ID: b.nextID, Op: op, Args: args}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", op, err)
	}
	if _, err := b.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to send %s request: %w", op, err)
	}

	read := make(chan scanResult, 1)
	go func() {
		if !b.scanner.Scan() {
			err := b.scanner.Err()
			if err == nil {
				err = ErrBridgeClosed
			}
			read <- scanResult{err: err}
			return
		}
		read <- scanResult{line: bytes.Clone(b.scanner.Bytes())}
	}()

	var res scanResult
	select {
	case <-ctx.Done():
		b.abandoned = true
		return fmt.Errorf("%s: %w", op, ctx.Err())
	case res = <-read:
	}
	if res.err != nil {
		if errors.Is(res.err, ErrBridgeClosed) {
			return fmt.Errorf("%s: %w", op, ErrBridgeClosed)
		}
		return fmt.Errorf("failed to read %s response: %w", op, res.err)
	}

	var resp bridgeResponse
	if err := json.Unmarshal(res.line, &resp); err != nil {
		return fmt.Errorf("malformed %s response: %w", op, err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%s response id %d does not match request %d", op, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return fmt.Errorf("%s: %s", op, resp.Error)
	}

	if out != nil {
		if len(resp.Result) == 0 || bytes.Equal(resp.Result, []byte("null")) {
			return fmt.Errorf("%s: empty result", op)
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("%s: unexpected result %s: %w", op, resp.Result, err)
		}
	}
	return nil
}

type surfaceArgs struct {
	Surface int `json:"surface"`
}

type tiltDecentreArgs struct {
	Surface   int     `json:"surface,omitempty"`
	Start     int     `json:"start,omitempty"`
	End       int     `json:"end,omitempty"`
	XDecentre float64 `json:"xdec"`
	YDecentre float64 `json:"ydec"`
	XTilt     float64 `json:"xtilt"`
	YTilt     float64 `json:"ytilt"`
}

func (b *Bridge) Load(ctx context.Context, path string) error {
	return b.call(ctx, "load", map[string]string{"path": path}, nil)
}

func (b *Bridge) SurfaceCount(ctx context.Context) (int, error) {
	var n int
	err := b.call(ctx, "surface_count", nil, &n)
	return n, err
}

func (b *Bridge) Comment(ctx context.Context, surf int) (string, error) {
	var c string
	err := b.call(ctx, "get_comment", surfaceArgs{Surface: surf}, &c)
	return c, err
}

func (b *Bridge) SetComment(ctx context.Context, surf int, comment string, appendTo bool) error {
	if appendTo {
		old, err := b.Comment(ctx, surf)
		if err != nil {
			return err
		}
		if old != "" {
			comment = comment + ";" + old
		}
	}
	args := struct {
		Surface int    `json:"surface"`
		Comment string `json:"comment"`
	}{surf, comment}
	return b.call(ctx, "set_comment", args, nil)
}

func (b *Bridge) InsertTiltDecentre(ctx context.Context, start, end int, p mount.Params) (Breaks, error) {
	var br Breaks
	args := tiltDecentreArgs{Start: start, End: end, XDecentre: p.XDecentre, YDecentre: p.YDecentre, XTilt: p.XTilt, YTilt: p.YTilt}
	err := b.call(ctx, "tilt_decenter_elements", args, &br)
	return br, err
}

func (b *Bridge) SetTiltDecentre(ctx context.Context, surf int, p mount.Params) error {
	args := tiltDecentreArgs{Surface: surf, XDecentre: p.XDecentre, YDecentre: p.YDecentre, XTilt: p.XTilt, YTilt: p.YTilt}
	return b.call(ctx, "set_tilt_decenter", args, nil)
}

func (b *Bridge) TiltDecentre(ctx context.Context, surf int) (mount.Params, error) {
	var args tiltDecentreArgs
	if err := b.call(ctx, "get_tilt_decenter", surfaceArgs{Surface: surf}, &args); err != nil {
		return mount.Params{}, err
	}
	return mount.Params{XDecentre: args.XDecentre, YDecentre: args.YDecentre, XTilt: args.XTilt, YTilt: args.YTilt}, nil
}

func (b *Bridge) Thickness(ctx context.Context, surf int) (float64, error) {
	var t float64
	err := b.call(ctx, "get_thickness", surfaceArgs{Surface: surf}, &t)
	return t, err
}

func (b *Bridge) SetThicknessVariable(ctx context.Context, surf int) error {
	return b.call(ctx, "set_thickness_variable", surfaceArgs{Surface: surf}, nil)
}

func (b *Bridge) CreateMerit(ctx context.Context, kind MeritKind) error {
	return b.call(ctx, "create_merit", map[string]string{"kind": string(kind)}, nil)
}

func (b *Bridge) FindMeritRow(ctx context.Context, op, comment string) (int, error) {
	var row int
	if err := b.call(ctx, "find_merit_row", map[string]string{"op": op, "comment": comment}, &row); err != nil {
		return 0, err
	}
	if row < 1 {
		return 0, fmt.Errorf("%w: %s %q", ErrMeritRowNotFound, op, comment)
	}
	return row, nil
}

func (b *Bridge) DeleteMeritRow(ctx context.Context, row int) error {
	return b.call(ctx, "delete_merit_row", map[string]int{"row": row}, nil)
}

func (b *Bridge) InsertAirGapConstraint(ctx context.Context, row, surf int, minGap, maxGap float64) error {
	args := struct {
		Row     int     `json:"row"`
		Surface int     `json:"surface"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
	}{row, surf, minGap, maxGap}
	return b.call(ctx, "insert_air_gap_constraint", args, nil)
}

func (b *Bridge) Push(ctx context.Context) error {
	return b.call(ctx, "push", nil, nil)
}

// Optimise returns the merit value reported by the bridge. A result that is
// not a JSON number is an error.
func (b *Bridge) Optimise(ctx context.Context, cycles int) (float64, error) {
	var value float64
	if err := b.call(ctx, "optimise", map[string]int{"cycles": cycles}, &value); err != nil {
		return 0, err
	}
	return value, nil
}

// Close asks the bridge to exit, closes its input and waits for the process.
func (b *Bridge) Close() error {
	if err := b.call(context.Background(), "close", nil, nil); err != nil && !errors.Is(err, ErrBridgeClosed) {
		slog.Warn("Bridge close request failed", "error", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.w.Close(); err != nil {
		slog.Debug("Failed to close bridge input", "error", err)
	}
	if b.cmd != nil {
		if err := b.cmd.Wait(); err != nil {
			return fmt.Errorf("bridge exited: %w", err)
		}
	}
	return nil
}
