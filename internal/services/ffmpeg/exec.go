package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

const (
	stderrTailLines = 12
	maxLineBytes    = 1 << 20
)

// Executor abstracts command execution for testability. onStdout receives
// each stdout line; stderr is returned in the error on failure.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	tail := &lineTail{max: stderrTailLines}
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		// Keep the pipe empty after an oversized line so the child never blocks.
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go scan(stdout, func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	})
	go scan(stderr, tail.add)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if msg := tail.String(); msg != "" {
			return fmt.Errorf("wait command: %w: %s", err, msg)
		}
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

type lineTail struct {
	max   int
	lines []string
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, " | ")
}
