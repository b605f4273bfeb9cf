// Package hub fans committed captures out to live observers.
//
// A single dispatcher drains the publish queue, so every observer sees
// captures in the order they were published. Observers register before
// their snapshot is read and skip live captures already covered by it,
// which leaves no gap and no duplicate across the snapshot boundary.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padraicbc/tracker/metrics"
	"github.com/padraicbc/tracker/models"
)

// Event names pushed to observers.
const (
	EventReaders  = "readers"
	EventCaptures = "captures"
)

// Message is one server-pushed event.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is the write side of an observer connection. Serve is its only writer.
type Conn interface {
	WriteJSON(v any) error
}

// Snapshotter reads the state sent to newly connected observers.
type Snapshotter interface {
	Readers(ctx context.Context) ([]models.Reader, error)
	Captures(ctx context.Context) ([]models.Capture, error)
}

type observer struct {
	id      string
	send    chan models.CaptureView
	evicted chan struct{}
	once    sync.Once
}

func (o *observer) evict() {
	o.once.Do(func() { close(o.evicted) })
}

// Hub is the registry of live observers.
type Hub struct {
	snap           Snapshotter
	log            *zap.Logger
	queueSize      int
	observerBuffer int
	queue          chan models.CaptureView

	mu        sync.RWMutex
	observers map[string]*observer
	closed    bool
}

// New creates a Hub. Call Run to start fan-out.
func New(snap Snapshotter, log *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		snap:           snap,
		log:            log,
		queueSize:      defaultQueueSize,
		observerBuffer: defaultObserverBuffer,
		observers:      make(map[string]*observer),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.queue = make(chan models.CaptureView, h.queueSize)
	return h
}

// Publish queues a committed capture for fan-out without blocking. It
// returns false when the hub is closed or the queue is full.
func (h *Hub) Publish(v models.CaptureView) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return false
	}
	select {
	case h.queue <- v:
		metrics.UpdateHubQueueDepth(len(h.queue))
		return true
	default:
		return false
	}
}

// Run dispatches queued captures until ctx is done or the hub is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-h.queue:
			if !ok {
				return
			}
			metrics.UpdateHubQueueDepth(len(h.queue))
			h.fanout(v)
		}
	}
}

func (h *Hub) fanout(v models.CaptureView) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, o := range h.observers {
		// Evicted observers stay registered until their session unwinds.
		select {
		case <-o.evicted:
			continue
		default:
		}
		select {
		case o.send <- v:
			metrics.RecordBroadcastDelivered()
		default:
			metrics.RecordBroadcastDropped("observer_full")
			h.log.Warn("observer fell behind, disconnecting", zap.String("observer", o.id), zap.Int64("capture_id", v.ID))
			o.evict()
		}
	}
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close stops accepting captures and disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.queue)
	for _, o := range h.observers {
		o.evict()
	}
}

func (h *Hub) register() (*observer, error) {
	o := &observer{
		id:      uuid.NewString(),
		send:    make(chan models.CaptureView, h.observerBuffer),
		evicted: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.observers[o.id] = o
	metrics.ObserverConnected()
	return o, nil
}

func (h *Hub) unregister(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o.id]; ok {
		delete(h.observers, o.id)
		metrics.ObserverDisconnected()
	}
}

// Serve streams the snapshot and then live captures to conn until ctx is
// done, the observer falls behind, a write fails or the hub closes.
func (h *Hub) Serve(ctx context.Context, conn Conn) error {
	o, err := h.register()
	if err != nil {
		return err
	}
	defer h.unregister(o)

	log := h.log.With(zap.String("observer", o.id))
	log.Debug("observer connected")
	defer log.Debug("observer disconnected")

	watermark, err := h.sendSnapshot(ctx, conn)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-o.evicted:
			h.mu.RLock()
			closed := h.closed
			h.mu.RUnlock()
			if closed {
				return ErrClosed
			}
			return ErrObserverTooSlow
		case v := <-o.send:
			if !v.Captured.After(watermark) {
				continue
			}
			watermark = v.Captured
			if err := conn.WriteJSON(Message{Event: EventCaptures, Data: []models.CaptureView{v}}); err != nil {
				return err
			}
		}
	}
}

// sendSnapshot writes readers then captures and returns the captured instant
// of the newest capture included.
func (h *Hub) sendSnapshot(ctx context.Context, conn Conn) (time.Time, error) {
	readers, err := h.snap.Readers(ctx)
	if err != nil {
		return time.Time{}, err
	}
	captures, err := h.snap.Captures(ctx)
	if err != nil {
		return time.Time{}, err
	}

	if err := conn.WriteJSON(Message{Event: EventReaders, Data: models.ReaderViews(readers)}); err != nil {
		return time.Time{}, err
	}
	views := models.CaptureViews(captures)
	if err := conn.WriteJSON(Message{Event: EventCaptures, Data: views}); err != nil {
		return time.Time{}, err
	}

	var watermark time.Time
	if n := len(views); n > 0 {
		watermark = views[n-1].Captured
	}
	return watermark, nil
}
