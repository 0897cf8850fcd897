package gamdl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/yokitheyo/gamdlbot/internal/model"
	"github.com/yokitheyo/gamdlbot/internal/progress"
)

type Runner struct {
	// Command is the downloader invocation prefix, e.g. ["gamdl"] or
	// ["python", "-m", "gamdl"].
	Command     []string
	CookiesPath string
	LogLevel    string
	ExtraArgs   []string
	Logger      *slog.Logger
}

type Job struct {
	URLs       []string
	OutputDir  string
	PresetArgs []string
}

type Result struct {
	ExitCode int
	Tail     string
	Command  []string
	Err      error
}

func (r Result) Failed() bool { return r.ExitCode != 0 }

// AsError converts a failed result into a *model.DownloadFailedError.
func (r Result) AsError() error {
	if !r.Failed() {
		return nil
	}
	return &model.DownloadFailedError{ExitCode: r.ExitCode, Tail: r.Tail, Err: r.Err}
}

// LookupCommand prefers a gamdl entrypoint on PATH and falls back to the
// python module.
func LookupCommand(binary string) []string {
	if strings.TrimSpace(binary) != "" {
		return []string{binary}
	}
	if _, err := exec.LookPath("gamdl"); err == nil {
		return []string{"gamdl"}
	}
	return []string{"python", "-m", "gamdl"}
}

// downloaderLevel maps slog level names onto the names the downloader accepts.
func downloaderLevel(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "WARN" {
		return "WARNING"
	}
	return level
}

func (r *Runner) BuildArgs(job Job) []string {
	logLevel := r.LogLevel
	if logLevel == "" {
		logLevel = "INFO"
	}
	args := []string{
		"--cookies-path", r.CookiesPath,
		"--output-path", job.OutputDir,
		"--no-config-file",
		"--log-level", downloaderLevel(logLevel),
	}
	args = append(args, r.ExtraArgs...)
	args = append(args, job.PresetArgs...)
	args = append(args, job.URLs...)
	return args
}

// Run executes the downloader and streams its merged output to sink.
// It never returns an error: failures are folded into Result.
func (r *Runner) Run(ctx context.Context, job Job, sink progress.Sink) Result {
	if sink == nil {
		sink = progress.Discard
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	command := r.Command
	if len(command) == 0 {
		command = LookupCommand("")
	}
	full := append(append([]string{}, command...), r.BuildArgs(job)...)
	res := Result{Command: full}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		res.ExitCode = -1
		res.Err = fmt.Errorf("create workspace %s: %w", job.OutputDir, err)
		res.Tail = res.Err.Error()
		return res
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		res.ExitCode = -1
		res.Err = fmt.Errorf("setup output pipe: %w", err)
		res.Tail = res.Err.Error()
		return res
	}
	defer pr.Close()

	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	cmd.Stdout = pw
	cmd.Stderr = pw

	logger.Info("downloader starting", "dir", job.OutputDir, "urls", len(job.URLs), "args", len(full)-1)
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		res.ExitCode = -1
		res.Err = fmt.Errorf("start %s: %w", full[0], err)
		res.Tail = res.Err.Error()
		return res
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	tail := NewTail(TailKeep)
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.Push(line)
		sink.Report(progress.Summarize(line))
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("downloader output read failed", "error", err)
		// Keep the pipe empty so the child can exit.
		_, _ = io.Copy(io.Discard, pr)
	}

	waitErr := cmd.Wait()
	res.Tail = tail.Last(TailShow)
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
		res.Err = waitErr
	}
	logger.Info("downloader finished", "dir", job.OutputDir, "exit_code", res.ExitCode)
	return res
}

// maxLineBytes bounds a single output line; longer lines are cut into
// chunks of this size.
const maxLineBytes = 64 * 1024

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data) && i < maxLineBytes; i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if len(data) >= maxLineBytes {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
