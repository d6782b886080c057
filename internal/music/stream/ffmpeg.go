package stream

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpeg converts arbitrary audio input into raw PCM on stdout.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f FFmpeg) args(input string) []string {
	args := []string{}
	if input != "pipe:0" {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", input,
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	)
}

// Link transcodes a remote media URL.
func (f FFmpeg) Link(link string) (io.ReadCloser, error) {
	cmd := exec.Command(f.bin(), f.args(link)...)
	return startPipeline(cmd)
}

// Pipe runs src and feeds its stdout into ffmpeg. Both processes are killed on Close.
func (f FFmpeg) Pipe(src *exec.Cmd) (io.ReadCloser, error) {
	ffmpeg := exec.Command(f.bin(), f.args("pipe:0")...)

	srcOut, err := src.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source stdout pipe error: %w", err)
	}
	ffmpeg.Stdin = srcOut

	if err := src.Start(); err != nil {
		return nil, fmt.Errorf("source start error: %w", err)
	}

	rc, err := startPipeline(ffmpeg, src)
	if err != nil {
		_ = src.Process.Kill()
		_ = src.Wait()
		return nil, err
	}
	return rc, nil
}

// startPipeline starts head and returns its stdout. started are processes that
// are already running upstream of head.
func startPipeline(head *exec.Cmd, started ...*exec.Cmd) (io.ReadCloser, error) {
	out, err := head.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe error: %w", err)
	}
	if err := head.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return &processReader{ReadCloser: out, procs: append([]*exec.Cmd{head}, started...)}, nil
}

type processReader struct {
	io.ReadCloser
	procs []*exec.Cmd
	once  sync.Once
	err   error
}

func (p *processReader) Close() error {
	p.once.Do(func() {
		var errs []error
		for _, cmd := range p.procs {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		}
		if err := p.ReadCloser.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			errs = append(errs, err)
		}
		for _, cmd := range p.procs {
			_ = cmd.Wait()
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}
