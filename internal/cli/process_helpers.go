package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"alto/internal/pipeline"
	"alto/internal/pluginspec"
	"alto/internal/reservoir"
	"alto/internal/statestore"
	"alto/internal/task"
)

func zapField(key, value string) zap.Field { return zap.String(key, value) }

func newReservoirReader(p *Project, tap string) *reservoir.Reader {
	return reservoir.NewReader(p.Remote, "reservoir", p.Settings.Environment, tap)
}

func newReservoirWriter(p *Project, tap string) *reservoir.Writer {
	return reservoir.NewWriter(p.Remote, "reservoir", p.Settings.Environment, tap)
}

// captureIntoReservoir runs the tap alone (the reservoir substitutes for
// the target half of the pipeline per the tap->reservoir mode) and
// writes every line it emits, PII-hashed the same way a live pipeline
// would, into a reservoir.Writer before flushing the resulting
// partitions.
func captureIntoReservoir(ctx context.Context, p *Project, tap, tapExe, configPath, catalogPath string, tapView pluginspec.View, pii map[string]map[string]bool, stderr io.Writer) (*task.Outcome, error) {
	cmd := exec.CommandContext(ctx, tapExe, "--config", configPath, "--catalog", catalogPath)
	cmd.Env = envSlice(tapView.Env)
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	transformer := pipeline.Transformer{PII: pipeline.PIIFields(pii), Salt: p.Settings.PIISalt}
	writer := newReservoirWriter(p, tap)

	pr, pw := io.Pipe()
	copyDone := make(chan error, 1)
	go func() {
		err := transformer.Copy(pw, stdout)
		pw.Close()
		copyDone <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		writer.Write(line)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	<-copyDone

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if exitCode != 0 {
		return &task.Outcome{ExitCode: exitCode}, waitErr
	}
	if scanErr != nil {
		return &task.Outcome{ExitCode: 1}, scanErr
	}

	now := time.Now().UTC()
	writtenAt := now.Format("20060102150405") + fmt.Sprintf("%06d", now.Nanosecond()/1000)
	partitions, err := writer.Flush(ctx, writtenAt)
	if err != nil {
		return nil, err
	}
	p.Log.Info("reservoir capture complete", zap.String("tap", tap), zap.Int("partitions", len(partitions)))
	return &task.Outcome{ExitCode: 0}, nil
}

// replaySequentialIntoTarget feeds the decompressed reservoir partitions
// into a freshly started target process's stdin and scans its stdout
// for STATE lines, the reservoir->target half of §4.8.
func replaySequentialIntoTarget(ctx context.Context, reader *reservoir.Reader, partitions []reservoir.Partition, targetExe, configPath string, env map[string]string, stderr io.Writer, interceptor *statestore.Interceptor) (int, error) {
	cmd := exec.CommandContext(ctx, targetExe, "--config", configPath)
	cmd.Env = envSlice(env)
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return -1, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		return -1, err
	}

	stateDone := make(chan error, 1)
	go func() {
		stateDone <- scanStateLines(stdout, interceptor)
	}()

	replayErr := reader.ReplaySequential(ctx, partitions, stdin)
	stdin.Close()

	waitErr := cmd.Wait()
	<-stateDone

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	if replayErr != nil {
		return exitCode, replayErr
	}
	if exitCode != 0 {
		return exitCode, waitErr
	}
	return 0, nil
}

func scanStateLines(r io.Reader, ic *statestore.Interceptor) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		ic.Observe(scanner.Bytes())
	}
	return scanner.Err()
}

// runCheckInvocation runs a plugin as a bounded smoke-test invocation
// (used by test:<tap>) and reports its exit code.
func runCheckInvocation(ctx context.Context, exe string, args []string, env map[string]string) (int, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = envSlice(env)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), err
		}
		return -1, err
	}
	return 0, nil
}
