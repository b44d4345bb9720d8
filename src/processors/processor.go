package processors

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/interruptions"
	"github.com/voxline-ai/voxline/src/logger"
)

// FrameProcessor is the interface that all pipeline stages implement
type FrameProcessor interface {
	// ProcessFrame processes a single frame
	ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error

	// QueueFrame adds a frame to this processor's queue
	QueueFrame(frame frames.Frame, direction frames.FrameDirection) error

	// PushFrame sends a frame to the next/previous processor
	PushFrame(frame frames.Frame, direction frames.FrameDirection) error

	// Link connects this processor to the next one in the chain
	Link(next FrameProcessor)

	// SetPrev sets the previous processor in the chain
	SetPrev(prev FrameProcessor)

	// Start begins processing frames
	Start(ctx context.Context) error

	// Stop gracefully stops the processor
	Stop() error

	// Name returns the processor name
	Name() string
}

// ProcessHandler is implemented by concrete stages for custom processing
type ProcessHandler interface {
	HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error
}

type frameWithDirection struct {
	frame     frames.Frame
	direction frames.FrameDirection
}

// BaseProcessor provides the common stage machinery. System frames travel
// through a dedicated high-priority channel so that interruption and
// cancellation signals are never queued behind bulk audio/text frames.
type BaseProcessor struct {
	name string
	next FrameProcessor
	prev FrameProcessor

	systemChan chan frameWithDirection
	dataChan   chan frameWithDirection

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	handler ProcessHandler
	log     *logger.Logger

	allowInterruptions     bool
	interruptionStrategies []interruptions.InterruptionStrategy
}

// NewBaseProcessor creates a new BaseProcessor
func NewBaseProcessor(name string, handler ProcessHandler) *BaseProcessor {
	return &BaseProcessor{
		name:       name,
		systemChan: make(chan frameWithDirection, 100),
		dataChan:   make(chan frameWithDirection, 1000),
		handler:    handler,
		log:        logger.WithPrefix(name),
	}
}

func (p *BaseProcessor) Name() string {
	return p.name
}

// Log returns the processor's prefixed logger
func (p *BaseProcessor) Log() *logger.Logger {
	return p.log
}

func (p *BaseProcessor) Link(next FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = next
	if next != nil {
		next.SetPrev(p)
	}
}

func (p *BaseProcessor) SetPrev(prev FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = prev
}

func (p *BaseProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("processor %s already started", p.name)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.frameLoop(p.systemChan)
	go p.frameLoop(p.dataChan)

	p.log.Debug("started")
	return nil
}

func (p *BaseProcessor) Stop() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.log.Debug("stopped")
	return nil
}

func (p *BaseProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	fwd := frameWithDirection{frame: frame, direction: direction}

	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()
	if ctx == nil {
		return fmt.Errorf("processor %s not started", p.name)
	}

	if categorizable, ok := frame.(frames.Categorizable); ok {
		if categorizable.Category() == frames.SystemCategory {
			select {
			case p.systemChan <- fwd:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	select {
	case p.dataChan <- fwd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BaseProcessor) PushFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.RLock()
	var target FrameProcessor
	if direction == frames.Downstream {
		target = p.next
	} else {
		target = p.prev
	}
	p.mu.RUnlock()

	if target == nil {
		// End of chain
		return nil
	}

	return target.QueueFrame(frame, direction)
}

func (p *BaseProcessor) ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if p.handler != nil {
		return p.handler.HandleFrame(ctx, frame, direction)
	}
	// Default: pass through
	return p.PushFrame(frame, direction)
}

// HandleStartFrame copies the pipeline's interruption configuration into
// the processor. Every stage calls this when it sees the StartFrame.
func (p *BaseProcessor) HandleStartFrame(frame *frames.StartFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowInterruptions = frame.AllowInterruptions
	p.interruptionStrategies = frame.InterruptionStrategies
}

// InterruptionsAllowed reports whether the pipeline allows the user to
// cut off the assistant mid-utterance.
func (p *BaseProcessor) InterruptionsAllowed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allowInterruptions
}

// InterruptionStrategies returns the configured interruption strategies.
func (p *BaseProcessor) InterruptionStrategies() []interruptions.InterruptionStrategy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interruptionStrategies
}

// PushInterruptionTaskFrame sends an InterruptionTaskFrame upstream so
// the pipeline task can broadcast a downstream InterruptionFrame.
func (p *BaseProcessor) PushInterruptionTaskFrame() error {
	return p.PushFrame(frames.NewInterruptionTaskFrame(), frames.Upstream)
}

// HandleInterruptionFrame drains the data queue so frames generated
// before the interruption never reach the handler.
func (p *BaseProcessor) HandleInterruptionFrame() {
	drained := 0
	for {
		select {
		case <-p.dataChan:
			drained++
		default:
			if drained > 0 {
				p.log.Debug("dropped %d queued frames on interruption", drained)
			}
			return
		}
	}
}

func (p *BaseProcessor) frameLoop(ch chan frameWithDirection) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case fwd := <-ch:
			if err := p.ProcessFrame(p.ctx, fwd.frame, fwd.direction); err != nil {
				p.log.Error("error processing %s: %v", fwd.frame.Name(), err)
			}
		}
	}
}
