package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/interruptions"
	"github.com/voxline-ai/voxline/src/logger"
)

// PipelineTaskConfig holds configuration for a pipeline task
type PipelineTaskConfig struct {
	AllowInterruptions     bool
	InterruptionStrategies []interruptions.InterruptionStrategy
}

// DefaultPipelineTaskConfig returns default configuration
func DefaultPipelineTaskConfig() *PipelineTaskConfig {
	return &PipelineTaskConfig{
		AllowInterruptions:     true,
		InterruptionStrategies: []interruptions.InterruptionStrategy{},
	}
}

// PipelineTask orchestrates the execution of a pipeline. It seeds the
// StartFrame, converts upstream InterruptionTaskFrames into downstream
// InterruptionFrames, and finishes on EndFrame, CancelFrame or a
// participant leaving.
type PipelineTask struct {
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *logger.Logger

	config *PipelineTaskConfig

	userFrameQueue chan frames.Frame

	started  bool
	finished bool
	fatalErr error
	mu       sync.RWMutex

	onStarted  func()
	onFinished func()
	onError    func(error)
}

// NewPipelineTask creates a new pipeline task with default configuration
func NewPipelineTask(pipeline *Pipeline) *PipelineTask {
	return NewPipelineTaskWithConfig(pipeline, DefaultPipelineTaskConfig())
}

// NewPipelineTaskWithConfig creates a new pipeline task with custom configuration
func NewPipelineTaskWithConfig(pipeline *Pipeline, config *PipelineTaskConfig) *PipelineTask {
	task := &PipelineTask{
		pipeline:       pipeline,
		config:         config,
		userFrameQueue: make(chan frames.Frame, 100),
		log:            logger.WithPrefix("PipelineTask"),
	}
	pipeline.Initialize(task)
	return task
}

// OnStarted sets a callback for when the pipeline starts
func (t *PipelineTask) OnStarted(callback func()) {
	t.onStarted = callback
}

// OnFinished sets a callback for when the pipeline finishes
func (t *PipelineTask) OnFinished(callback func()) {
	t.onFinished = callback
}

// OnError sets a callback for errors
func (t *PipelineTask) OnError(callback func(error)) {
	t.onError = callback
}

// QueueFrame adds a frame to be processed by the pipeline
func (t *PipelineTask) QueueFrame(frame frames.Frame) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.started {
		return fmt.Errorf("pipeline not started")
	}
	if t.finished {
		return fmt.Errorf("pipeline already finished")
	}

	select {
	case t.userFrameQueue <- frame:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// Run starts the pipeline and blocks until completion
func (t *PipelineTask) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.log.Info("starting pipeline")

	if err := t.pipeline.Start(t.ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	t.wg.Add(1)
	go t.processUserFrames()

	startFrame := frames.NewStartFrameWithConfig(
		t.config.AllowInterruptions,
		t.config.InterruptionStrategies,
	)
	if err := t.pipeline.QueueFrame(startFrame); err != nil {
		return fmt.Errorf("failed to queue start frame: %w", err)
	}

	t.wg.Wait()

	if err := t.pipeline.Stop(); err != nil {
		t.log.Error("error stopping pipeline: %v", err)
	}

	t.mu.RLock()
	fatalErr := t.fatalErr
	t.mu.RUnlock()

	if fatalErr != nil {
		t.log.Error("pipeline finished after fatal error: %v", fatalErr)
		return fatalErr
	}
	t.log.Info("pipeline finished")
	return nil
}

// Cancel stops the pipeline immediately
func (t *PipelineTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
}

// processUserFrames feeds externally queued frames into the source
func (t *PipelineTask) processUserFrames() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case frame := <-t.userFrameQueue:
			if err := t.pipeline.QueueFrame(frame); err != nil {
				t.log.Error("error queuing user frame: %v", err)
				if t.onError != nil {
					t.onError(err)
				}
			}
		}
	}
}

// handleDownstreamFrame handles frames that reach the sink
func (t *PipelineTask) handleDownstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		t.log.Info("pipeline started")
		if t.onStarted != nil {
			t.onStarted()
		}

	case *frames.EndFrame:
		t.log.Info("end frame reached sink, finishing")
		t.markFinished()
		t.Cancel()

	case *frames.CancelFrame:
		t.log.Info("cancel frame reached sink, stopping immediately")
		t.markFinished()
		t.Cancel()

	case *frames.ParticipantLeftFrame:
		t.log.Info("participant %s left, finishing call", f.ParticipantID)
		t.markFinished()
		t.Cancel()

	case *frames.ErrorFrame:
		t.log.Error("error frame reached sink: %v", f.Error)
		if t.onError != nil {
			t.onError(f.Error)
		}
		if f.Fatal {
			t.recordFatal(f.Error)
			t.markFinished()
			t.Cancel()
		}
	}

	return nil
}

// handleUpstreamFrame handles frames that travel past the first stage
func (t *PipelineTask) handleUpstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.InterruptionTaskFrame:
		t.log.Info("interruption requested, broadcasting downstream")
		if err := t.pipeline.QueueFrame(frames.NewInterruptionFrame()); err != nil {
			t.log.Error("error queuing interruption frame: %v", err)
			return err
		}

	case *frames.ParticipantLeftFrame:
		t.log.Info("participant %s left, finishing call", f.ParticipantID)
		t.markFinished()
		t.Cancel()

	case *frames.ErrorFrame:
		if t.onError != nil {
			t.onError(f.Error)
		}
		if f.Fatal {
			t.recordFatal(f.Error)
			t.markFinished()
			t.Cancel()
		}
	}

	return nil
}

func (t *PipelineTask) recordFatal(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fatalErr == nil {
		t.fatalErr = err
	}
}

func (t *PipelineTask) markFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.finished {
		t.finished = true
		if t.onFinished != nil {
			t.onFinished()
		}
	}
}
