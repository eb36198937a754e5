package stream

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/observability"
)

var (
	ErrAlreadyRunning = errors.New("stream engine already running")
	ErrNotRunning     = errors.New("stream engine not running")
)

// Engine drives the render loop: one composited frame per tick, fanned out to
// all consumers, batched into GIFs of a fixed length. A ready batch is dropped
// when the previous delivery is still in flight; staleness is bounded, memory
// is bounded, the render cadence never waits on slow consumers.
type Engine struct {
	console device.Console
	overlay *OverlayRenderer
	metrics *observability.Metrics

	period        time.Duration
	batchFrames   int
	playbackDelay time.Duration

	mu            sync.Mutex
	consumers     []Consumer
	globalMessage string
	cancel        context.CancelFunc
	done          chan struct{}

	batch     *Batch
	batchBusy atomic.Bool
}

func NewEngine(console device.Console, overlay *OverlayRenderer, metrics *observability.Metrics, period time.Duration, batchFrames int, playbackDelay time.Duration) *Engine {
	return &Engine{
		console:       console,
		overlay:       overlay,
		metrics:       metrics,
		period:        period,
		batchFrames:   batchFrames,
		playbackDelay: playbackDelay,
		batch:         NewBatch(playbackDelay),
	}
}

// AddConsumer registers a consumer for frames and batches.
func (e *Engine) AddConsumer(c Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]Consumer, len(e.consumers), len(e.consumers)+1)
	copy(next, e.consumers)
	e.consumers = append(next, c)
}

// RemoveConsumer unregisters a previously added consumer.
func (e *Engine) RemoveConsumer(c Consumer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := make([]Consumer, 0, len(e.consumers))
	for _, existing := range e.consumers {
		if existing != c {
			next = append(next, existing)
		}
	}
	e.consumers = next
}

// SetGlobalMessage sets the top banner text; empty clears it.
func (e *Engine) SetGlobalMessage(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalMessage = msg
}

// GlobalMessage returns the current top banner text.
func (e *Engine) GlobalMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.globalMessage
}

// Start begins the render loop. It fails if the engine is already running.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.batch = NewBatch(e.playbackDelay)
	go e.run(ctx, e.done)
	return nil
}

// Stop cancels the render loop and waits for the current cycle to finish. It
// fails if the engine is not running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.renderCycle()
		}
	}
}

func (e *Engine) renderCycle() {
	start := time.Now()
	frame := e.renderFrame()

	consumers := e.snapshotConsumers()
	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()
			defer logPanics("frame consumer")
			c.AcceptFrame(frame)
		}(c)
	}
	wg.Wait()

	e.batch.Append(frame)
	if e.batch.Len() >= e.batchFrames {
		e.flushBatch(consumers)
	}

	e.metrics.ObserveRenderLatency(time.Since(start))
}

func (e *Engine) flushBatch(consumers []Consumer) {
	batch := e.batch
	e.batch = NewBatch(e.playbackDelay)

	if !e.batchBusy.CompareAndSwap(false, true) {
		log.Printf("stream: skipping batch, consumers still busy with previous")
		e.metrics.IncBatchEvent("dropped")
		return
	}

	blob, err := batch.Encode()
	if err != nil {
		log.Printf("stream: batch encode failed: %v", err)
		e.batchBusy.Store(false)
		return
	}

	go func() {
		defer e.batchBusy.Store(false)
		var wg sync.WaitGroup
		for _, c := range consumers {
			wg.Add(1)
			go func(c Consumer) {
				defer wg.Done()
				defer logPanics("batch consumer")
				c.AcceptBatch(blob)
			}(c)
		}
		wg.Wait()
		e.metrics.IncBatchEvent("flushed")
	}()
}

func (e *Engine) renderFrame() *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, StreamWidth, StreamHeight))

	screen := e.console.Screen()
	screenArea := image.Rect(0, 0, ScreenWidth, ScreenHeight)
	xdraw.NearestNeighbor.Scale(frame, screenArea, screen, screen.Bounds(), xdraw.Src, nil)

	if msg := e.GlobalMessage(); msg != "" {
		RenderBanner(frame, msg, screenArea, PlacementTop)
	}

	e.overlay.Render(frame, image.Rect(ScreenWidth, 0, StreamWidth, StreamHeight))
	return frame
}

func (e *Engine) snapshotConsumers() []Consumer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumers
}

func logPanics(where string) {
	if r := recover(); r != nil {
		log.Printf("stream: %s panicked: %v", where, r)
	}
}
