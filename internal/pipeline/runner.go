// Package pipeline spawns a tap and a target as OS processes and
// stream-copies the tap's output into the target's input through an
// in-process transformer, intercepting STATE messages along the way.
package pipeline

import (
	"io"
	"time"

	"context"

	"go.uber.org/zap"

	"alto/internal/errtax"
	"alto/internal/statestore"
)

// Options configures one pipeline run.
type Options struct {
	Tap         Invocation
	Target      Invocation
	StreamMap   *Invocation // optional filter process between tap and target
	PII         PIIFields
	PIISalt     string
	ActiveState io.Reader // when non-nil, connected to the tap's stdin; --state is passed in Tap.Args
	GracePeriod time.Duration
	Log         *zap.Logger
}

// Result carries the outcome of a pipeline run.
type Result struct {
	TapExitCode    int
	TargetExitCode int
	StreamMapExit  int
	FinalState     map[string]any
}

// Run executes the tap->target pipeline: tap stdout feeds the
// transformer, the transformer feeds an optional stream-map process (or
// the target directly), and the target's stdout is scanned for STATE
// lines. Bytes emitted by the tap between two STATE lines reach the
// target in the same relative order: every stage is a single chained
// pipe, so OS pipe buffers provide back-pressure and there is no
// reordering opportunity.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	grace := opts.GracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}

	tapOutR, tapOutW := io.Pipe()
	tap, err := start(ctx, opts.Tap, opts.ActiveState, tapOutW)
	if err != nil {
		return nil, &errtax.PipelineFailure{Cause: err}
	}

	// The transformer always writes into toTarget; if a stream-map is
	// configured, toTarget is the stream-map's stdin and the
	// stream-map's stdout becomes the target's real stdin.
	targetStdin, toTarget := io.Pipe()
	var streamMapProc *process
	var streamMapDone chan error
	if opts.StreamMap != nil {
		streamMapInR, streamMapInW := io.Pipe()
		toTarget = streamMapInW
		var streamMapOutW *io.PipeWriter
		targetStdin, streamMapOutW = io.Pipe()

		smProc, err := start(ctx, *opts.StreamMap, streamMapInR, streamMapOutW)
		if err != nil {
			return nil, &errtax.PipelineFailure{Cause: err}
		}
		streamMapProc = smProc
		streamMapDone = make(chan error, 1)
		go func() {
			err := waitWithGrace(ctx, smProc, grace)
			streamMapOutW.Close()
			streamMapDone <- err
		}()
	}

	stateOutR, stateOutW := io.Pipe()
	target, err := start(ctx, opts.Target, targetStdin, stateOutW)
	if err != nil {
		return nil, &errtax.PipelineFailure{Cause: err}
	}

	interceptor := &statestore.Interceptor{}
	stateDone := make(chan error, 1)
	go func() {
		stateDone <- scanAndIntercept(stateOutR, interceptor)
	}()

	transformer := Transformer{PII: opts.PII, Salt: opts.PIISalt}
	transformDone := make(chan error, 1)
	go func() {
		err := transformer.Copy(toTarget, tapOutR)
		toTarget.Close()
		transformDone <- err
	}()

	// Cancellation order: tap first, then target, after a grace period
	// for the target to flush its final STATE line.
	tapErr := waitWithGrace(ctx, tap, grace)
	tapOutW.Close()
	log.Debug("tap process exited", zap.Int("exit_code", tap.exitCode(tapErr)))
	<-transformDone

	var streamMapErr error
	if streamMapProc != nil {
		streamMapErr = <-streamMapDone
	}

	targetErr := waitWithGrace(ctx, target, grace)
	stateOutW.Close()
	<-stateDone

	result := &Result{
		TapExitCode:    tap.exitCode(tapErr),
		TargetExitCode: target.exitCode(targetErr),
		FinalState:     interceptor.Last(),
	}
	if streamMapProc != nil {
		result.StreamMapExit = streamMapProc.exitCode(streamMapErr)
	}
	log.Debug("pipeline run finished",
		zap.Int("tap_exit_code", result.TapExitCode),
		zap.Int("target_exit_code", result.TargetExitCode),
		zap.Int("stream_map_exit_code", result.StreamMapExit),
	)

	if result.TapExitCode != 0 {
		return result, &errtax.PipelineFailure{ExitCode: result.TapExitCode, Cause: tapErr}
	}
	if result.StreamMapExit != 0 {
		return result, &errtax.PipelineFailure{ExitCode: result.StreamMapExit, Cause: streamMapErr}
	}
	if result.TargetExitCode != 0 {
		return result, &errtax.PipelineFailure{ExitCode: result.TargetExitCode, Cause: targetErr}
	}
	return result, nil
}

func scanAndIntercept(r io.Reader, ic *statestore.Interceptor) error {
	line := make([]byte, 0, 4096)
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n > 0 {
			if b[0] == '\n' {
				ic.Observe(line)
				line = line[:0]
			} else {
				line = append(line, b[0])
			}
		}
		if err != nil {
			if len(line) > 0 {
				ic.Observe(line)
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
