package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// maxFrameSize bounds a single response from the model worker.
const maxFrameSize = 64 << 20

// Worker operations.
const (
	opOpen     = "open"
	opRead     = "read"
	opClose    = "close"
	opExtract  = "extract"
	opLiveness = "liveness"
)

type workerRequest struct {
	Op        string  `cbor:"1,keyasint"`
	Camera    int     `cbor:"2,keyasint,omitempty"`
	Frame     *Frame  `cbor:"3,keyasint,omitempty"`
	Threshold float64 `cbor:"4,keyasint,omitempty"`
	Image     []byte  `cbor:"5,keyasint,omitempty"`
}

type workerResponse struct {
	Error      string  `cbor:"1,keyasint,omitempty"`
	NoFace     bool    `cbor:"2,keyasint,omitempty"`
	Frame      *Frame  `cbor:"3,keyasint,omitempty"`
	Feature    Feature `cbor:"4,keyasint,omitempty"`
	Live       bool    `cbor:"5,keyasint,omitempty"`
	Confidence float64 `cbor:"6,keyasint,omitempty"`
}

var workerEnc cbor.EncMode

func init() {
	var err error
	workerEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}
}

// Worker runs the camera and model inference in a child process. Requests
// are length-prefixed CBOR frames written to the child's stdin; responses
// come back the same way on file descriptor 3, leaving stdout and stderr
// free for the child's own logging.
//
// One request is in flight at a time.
type Worker struct {
	cmd    *exec.Cmd
	stderr *tailBuffer

	mu     sync.Mutex
	stdin  io.WriteCloser
	data   io.ReadCloser
	closed bool
}

// StartWorker launches path with args as the model worker.
func StartWorker(path string, args ...string) (*Worker, error) {
	cmd := exec.Command(path, args...)
	stderr := &tailBuffer{}
	cmd.Stderr = stderr

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create data pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("start worker %s: %w", path, err)
	}
	// Only the child keeps the write end.
	w.Close()

	return &Worker{cmd: cmd, stderr: stderr, stdin: stdin, data: r}, nil
}

// newWorkerConn wraps an existing request and response stream.
func newWorkerConn(stdin io.WriteCloser, data io.ReadCloser) *Worker {
	return &Worker{stdin: stdin, data: data, stderr: &tailBuffer{}}
}

func (w *Worker) call(ctx context.Context, req workerRequest) (workerResponse, error) {
	if err := ctx.Err(); err != nil {
		return workerResponse{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return workerResponse{}, ErrClosed
	}

	body, err := workerEnc.Marshal(req)
	if err != nil {
		return workerResponse{}, fmt.Errorf("marshal %s request: %w", req.Op, err)
	}
	if err := binary.Write(w.stdin, binary.BigEndian, uint32(len(body))); err != nil {
		return workerResponse{}, w.crashed(req.Op, err)
	}
	if _, err := w.stdin.Write(body); err != nil {
		return workerResponse{}, w.crashed(req.Op, err)
	}

	var header [4]byte
	if _, err := io.ReadFull(w.data, header[:]); err != nil {
		return workerResponse{}, w.crashed(req.Op, err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return workerResponse{}, fmt.Errorf("worker %s response of %d bytes exceeds limit", req.Op, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(w.data, buf); err != nil {
		return workerResponse{}, w.crashed(req.Op, err)
	}

	var resp workerResponse
	if err := cbor.Unmarshal(buf, &resp); err != nil {
		return workerResponse{}, fmt.Errorf("unmarshal %s response: %w", req.Op, err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("worker %s: %s", req.Op, resp.Error)
	}
	return resp, nil
}

func (w *Worker) crashed(op string, err error) error {
	if tail := w.stderr.Tail(512); len(tail) > 0 {
		return fmt.Errorf("worker %s: %w (stderr: %s)", op, err, tail)
	}
	return fmt.Errorf("worker %s: %w", op, err)
}

// Close stops the worker process. Closing stdin asks it to exit.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.stdin.Close()
	w.data.Close()
	if w.cmd != nil {
		if werr := w.cmd.Wait(); werr != nil && err == nil {
			var exit *exec.ExitError
			if !errors.As(werr, &exit) {
				err = werr
			}
		}
	}
	return err
}

// Camera returns the worker's camera.
func (w *Worker) Camera() Camera { return workerCamera{w} }

// Recognizer returns the worker's recognizer. Matching runs locally.
func (w *Worker) Recognizer() Recognizer { return workerRecognizer{w: w} }

// Liveness returns the worker's liveness classifier.
func (w *Worker) Liveness() Liveness { return workerLiveness{w} }

type workerCamera struct{ w *Worker }

func (c workerCamera) Open(ctx context.Context, index int) error {
	_, err := c.w.call(ctx, workerRequest{Op: opOpen, Camera: index})
	return err
}

func (c workerCamera) Read(ctx context.Context) (Frame, error) {
	resp, err := c.w.call(ctx, workerRequest{Op: opRead})
	if err != nil {
		return Frame{}, err
	}
	if resp.Frame == nil {
		return Frame{}, errors.New("worker read: empty frame")
	}
	return *resp.Frame, nil
}

func (c workerCamera) Close() error {
	_, err := c.w.call(context.Background(), workerRequest{Op: opClose})
	return err
}

type workerRecognizer struct {
	w *Worker
	CosineMatcher
}

func (r workerRecognizer) ExtractFeature(ctx context.Context, frame Frame, detectThreshold float64) (Feature, error) {
	resp, err := r.w.call(ctx, workerRequest{Op: opExtract, Frame: &frame, Threshold: detectThreshold})
	if err != nil {
		return nil, err
	}
	if resp.NoFace || len(resp.Feature) == 0 {
		return nil, ErrNoFace
	}
	return resp.Feature, nil
}

type workerLiveness struct{ w *Worker }

func (l workerLiveness) Detect(ctx context.Context, jpeg []byte) (bool, float64, error) {
	resp, err := l.w.call(ctx, workerRequest{Op: opLiveness, Image: jpeg})
	if err != nil {
		return false, 0, err
	}
	return resp.Live, resp.Confidence, nil
}

// tailBuffer keeps the last few KiB the child wrote to stderr.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailLimit = 4 << 10

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - tailLimit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

// Tail returns at most n trailing bytes with surrounding space trimmed.
func (b *tailBuffer) Tail(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := bytes.TrimSpace(b.buf)
	if len(t) > n {
		t = t[len(t)-n:]
	}
	return append([]byte(nil), t...)
}
