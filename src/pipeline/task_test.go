package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/processors"
)

// interruptOnText requests an interruption whenever text flows through
type interruptOnText struct {
	*processors.BaseProcessor
}

func newInterruptOnText() *interruptOnText {
	p := &interruptOnText{}
	p.BaseProcessor = processors.NewBaseProcessor("InterruptOnText", p)
	return p
}

func (p *interruptOnText) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.TextFrame); ok {
		return p.PushInterruptionTaskFrame()
	}
	return p.PushFrame(frame, direction)
}

// frameRecorder signals when a frame of the watched type passes through
type frameRecorder struct {
	*processors.BaseProcessor
	watch string
	seen  chan struct{}
}

func newFrameRecorder(watch string) *frameRecorder {
	p := &frameRecorder{
		watch: watch,
		seen:  make(chan struct{}, 10),
	}
	p.BaseProcessor = processors.NewBaseProcessor("FrameRecorder", p)
	return p
}

func (p *frameRecorder) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if frame.Name() == p.watch {
		select {
		case p.seen <- struct{}{}:
		default:
		}
	}
	return p.PushFrame(frame, direction)
}

func runTask(t *testing.T, task *PipelineTask) (started, done chan struct{}) {
	t.Helper()
	started = make(chan struct{})
	done = make(chan struct{})
	task.OnStarted(func() { close(started) })

	go func() {
		defer close(done)
		if err := task.Run(context.Background()); err != nil {
			t.Errorf("run: %v", err)
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not start")
	}
	return started, done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

func TestTaskFinishesOnEndFrame(t *testing.T) {
	passthrough := processors.NewBaseProcessor("Passthrough", nil)
	task := NewPipelineTask(NewPipeline([]processors.FrameProcessor{passthrough}))

	finished := make(chan struct{})
	task.OnFinished(func() { close(finished) })

	_, done := runTask(t, task)

	if err := task.QueueFrame(frames.NewEndFrame()); err != nil {
		t.Fatalf("queue end frame: %v", err)
	}

	waitDone(t, done)

	select {
	case <-finished:
	default:
		t.Error("finished callback not invoked")
	}
}

func TestTaskFinishesWhenParticipantLeaves(t *testing.T) {
	passthrough := processors.NewBaseProcessor("Passthrough", nil)
	task := NewPipelineTask(NewPipeline([]processors.FrameProcessor{passthrough}))

	_, done := runTask(t, task)

	if err := task.QueueFrame(frames.NewParticipantLeftFrame("caller-1")); err != nil {
		t.Fatalf("queue participant left: %v", err)
	}

	waitDone(t, done)
}

func TestRunReturnsFatalError(t *testing.T) {
	passthrough := processors.NewBaseProcessor("Passthrough", nil)
	task := NewPipelineTask(NewPipeline([]processors.FrameProcessor{passthrough}))

	started := make(chan struct{})
	task.OnStarted(func() { close(started) })

	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(context.Background()) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not start")
	}

	if err := task.QueueFrame(frames.NewFatalErrorFrame(errors.New("provider unreachable"))); err != nil {
		t.Fatalf("queue fatal error frame: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Run returned nil after a fatal error")
		}
		if !strings.Contains(err.Error(), "provider unreachable") {
			t.Errorf("Run error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish after fatal error")
	}
}

func TestInterruptionTaskFrameTriggersDownstreamBroadcast(t *testing.T) {
	requester := newInterruptOnText()
	recorder := newFrameRecorder("InterruptionFrame")
	task := NewPipelineTask(NewPipeline([]processors.FrameProcessor{requester, recorder}))

	_, done := runTask(t, task)

	if err := task.QueueFrame(frames.NewTextFrame("interrupt please")); err != nil {
		t.Fatalf("queue text frame: %v", err)
	}

	select {
	case <-recorder.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("interruption frame never reached downstream stages")
	}

	if err := task.QueueFrame(frames.NewEndFrame()); err != nil {
		t.Fatalf("queue end frame: %v", err)
	}
	waitDone(t, done)
}
