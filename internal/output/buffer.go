// Package output captures the stdout/stderr of one functions host process.
//
// A Buffer is attached to exactly one command before it starts. Two
// goroutines drain the OS pipes line by line so the child can never block on
// a full pipe, and every observer gets:
//
//   - monotonically growing text snapshots of both streams,
//   - a one-shot ready channel, closed the first time the accumulated stdout
//     contains the provider's ready pattern,
//   - a one-shot exit channel, closed with the exit code recorded when the
//     process terminates for any reason.
//
// The ready channel stays open forever when the pattern never appears; the
// timeout policy belongs to the caller, not here.
package output

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

type Buffer struct {
	cmd          *exec.Cmd
	readyPattern string
	stdoutPipe   io.ReadCloser
	stderrPipe   io.ReadCloser

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer

	readyOnce sync.Once
	ready     chan struct{}

	exited   chan struct{}
	exitCode int
}

// New attaches a Buffer to cmd. It must be called before the command starts
// and claims both output streams.
func New(cmd *exec.Cmd, readyPattern string) (*Buffer, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return &Buffer{
		cmd:          cmd,
		readyPattern: readyPattern,
		stdoutPipe:   stdout,
		stderrPipe:   stderr,
		ready:        make(chan struct{}),
		exited:       make(chan struct{}),
	}, nil
}

// Start starts the command and the drain goroutines.
func (b *Buffer) Start() error {
	if err := b.cmd.Start(); err != nil {
		return err
	}

	var drains sync.WaitGroup
	drains.Add(2)
	go func() {
		defer drains.Done()
		b.drain(b.stdoutPipe, &b.stdout, true)
	}()
	go func() {
		defer drains.Done()
		b.drain(b.stderrPipe, &b.stderr, false)
	}()

	go func() {
		// Pipes must be fully drained before Wait closes them.
		drains.Wait()
		err := b.cmd.Wait()
		code := 0
		if b.cmd.ProcessState != nil {
			code = b.cmd.ProcessState.ExitCode()
		} else if err != nil {
			code = -1
		}
		b.mu.Lock()
		b.exitCode = code
		b.mu.Unlock()
		close(b.exited)
	}()
	return nil
}

func (b *Buffer) drain(r io.Reader, dst *bytes.Buffer, watchReady bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		b.mu.Lock()
		dst.WriteString(line)
		dst.WriteByte('\n')
		b.mu.Unlock()
		if watchReady && b.readyPattern != "" && strings.Contains(line, b.readyPattern) {
			b.readyOnce.Do(func() { close(b.ready) })
		}
	}
	// Scanner errors mean the pipe closed mid-read; the exit path reports
	// what actually happened to the process.
}

// Pid returns the OS process id. Valid only after Start succeeded.
func (b *Buffer) Pid() int {
	return b.cmd.Process.Pid
}

// Stdout returns the accumulated standard output snapshot.
func (b *Buffer) Stdout() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stdout.String()
}

// Stderr returns the accumulated standard error snapshot.
func (b *Buffer) Stderr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stderr.String()
}

// Ready is closed the first time the ready pattern appears on stdout.
func (b *Buffer) Ready() <-chan struct{} {
	return b.ready
}

// Exited is closed when the process terminates for any reason.
func (b *Buffer) Exited() <-chan struct{} {
	return b.exited
}

// ExitCode is meaningful only once Exited is closed.
func (b *Buffer) ExitCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCode
}
