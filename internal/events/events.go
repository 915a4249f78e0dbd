package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ===============================
// EVENT INTERFACE
// ===============================

// Event represents a domain event
type Event interface {
	GetEventID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetMemberID() string
	GetMetadata() map[string]interface{}
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	MemberID  string                 `json:"member_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// GetEventID returns the event ID
func (e *BaseEvent) GetEventID() string {
	return e.EventID
}

// GetEventType returns the event type
func (e *BaseEvent) GetEventType() string {
	return e.EventType
}

// GetTimestamp returns the event timestamp
func (e *BaseEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

// GetMemberID returns the member the event concerns
func (e *BaseEvent) GetMemberID() string {
	return e.MemberID
}

// GetMetadata returns the event metadata
func (e *BaseEvent) GetMetadata() map[string]interface{} {
	return e.Metadata
}

// ===============================
// EVENT BUS INTERFACE
// ===============================

// EventBus defines the event publishing and subscription interface
type EventBus interface {
	// Publishing
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event) error

	// Subscription
	Subscribe(eventType string, handler EventHandler) error
	SubscribePattern(pattern string, handler EventHandler) error
	Unsubscribe(eventType string, handler EventHandler) error

	// Management
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() error
	Stats() *EventBusStats
}

// EventHandler represents an event handler function
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
	GetHandlerID() string
}

// EventHandlerFunc is a function type that implements EventHandler
type EventHandlerFunc struct {
	ID   string
	Func func(ctx context.Context, event Event) error
}

// Handle implements EventHandler
func (f EventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return f.Func(ctx, event)
}

// GetHandlerID implements EventHandler
func (f EventHandlerFunc) GetHandlerID() string {
	return f.ID
}

// EventBusStats represents event bus statistics
type EventBusStats struct {
	EventsPublished    int64         `json:"events_published"`
	EventsProcessed    int64         `json:"events_processed"`
	EventsFailed       int64         `json:"events_failed"`
	EventsDropped      int64         `json:"events_dropped"`
	HandlersCount      int           `json:"handlers_count"`
	QueueDepth         int           `json:"queue_depth"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	Uptime             time.Duration `json:"uptime"`
}

// ErrQueueFull is returned by PublishAsync when the buffer is saturated.
var ErrQueueFull = fmt.Errorf("event queue is full")

// ===============================
// IN-MEMORY EVENT BUS
// ===============================

// inMemoryEventBus implements EventBus using in-memory channels
type inMemoryEventBus struct {
	mu              sync.RWMutex
	handlers        map[string][]EventHandler
	patternHandlers map[string][]EventHandler
	eventQueue      chan eventMessage
	logger          *zap.Logger
	startTime       time.Time
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	config          *EventBusConfig

	statsMu            sync.Mutex
	stats              EventBusStats
	processingTimes    []time.Duration
	maxProcessingTimes int
}

// eventMessage wraps an event with context
type eventMessage struct {
	ctx   context.Context
	event Event
}

// EventBusConfig holds configuration for the event bus
type EventBusConfig struct {
	BufferSize     int           `json:"buffer_size" yaml:"buffer_size"`
	WorkerCount    int           `json:"worker_count" yaml:"worker_count"`
	HandlerTimeout time.Duration `json:"handler_timeout" yaml:"handler_timeout"`
}

// DefaultEventBusConfig returns default configuration
func DefaultEventBusConfig() *EventBusConfig {
	return &EventBusConfig{
		BufferSize:     1000,
		WorkerCount:    5,
		HandlerTimeout: 30 * time.Second,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(config *EventBusConfig, logger *zap.Logger) EventBus {
	if config == nil {
		config = DefaultEventBusConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &inMemoryEventBus{
		handlers:           make(map[string][]EventHandler),
		patternHandlers:    make(map[string][]EventHandler),
		eventQueue:         make(chan eventMessage, config.BufferSize),
		logger:             logger,
		startTime:          time.Now(),
		ctx:                ctx,
		cancel:             cancel,
		config:             config,
		processingTimes:    make([]time.Duration, 0, 100),
		maxProcessingTimes: 100,
	}
}

// Publish processes an event synchronously on the caller's goroutine.
func (b *inMemoryEventBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	b.logger.Debug("Publishing event",
		zap.String("event_id", event.GetEventID()),
		zap.String("event_type", event.GetEventType()),
	)

	b.addStat(func(s *EventBusStats) { s.EventsPublished++ })
	if err := b.processEvent(ctx, event); err != nil {
		b.logger.Error("Failed to process event",
			zap.String("event_id", event.GetEventID()),
			zap.String("event_type", event.GetEventType()),
			zap.Error(err),
		)
		b.addStat(func(s *EventBusStats) { s.EventsFailed++ })
		return err
	}
	b.addStat(func(s *EventBusStats) { s.EventsProcessed++ })
	return nil
}

// PublishAsync enqueues an event for the worker pool. Handlers run with a
// context detached from ctx's cancellation so a finished request does not
// abort them.
func (b *inMemoryEventBus) PublishAsync(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	select {
	case b.eventQueue <- eventMessage{ctx: context.WithoutCancel(ctx), event: event}:
		b.addStat(func(s *EventBusStats) { s.EventsPublished++ })
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.addStat(func(s *EventBusStats) { s.EventsDropped++ })
		return ErrQueueFull
	}
}

// Subscribe subscribes to events of a specific type
func (b *inMemoryEventBus) Subscribe(eventType string, handler EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
	b.addStat(func(s *EventBusStats) { s.HandlersCount++ })

	b.logger.Info("Handler subscribed",
		zap.String("event_type", eventType),
		zap.String("handler_id", handler.GetHandlerID()),
	)
	return nil
}

// SubscribePattern subscribes to events matching a pattern
func (b *inMemoryEventBus) SubscribePattern(pattern string, handler EventHandler) error {
	if pattern == "" {
		return fmt.Errorf("pattern cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	b.patternHandlers[pattern] = append(b.patternHandlers[pattern], handler)
	b.mu.Unlock()
	b.addStat(func(s *EventBusStats) { s.HandlersCount++ })

	b.logger.Info("Pattern handler subscribed",
		zap.String("pattern", pattern),
		zap.String("handler_id", handler.GetHandlerID()),
	)
	return nil
}

// Unsubscribe removes a handler for a specific event type
func (b *inMemoryEventBus) Unsubscribe(eventType string, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h.GetHandlerID() == handler.GetHandlerID() {
			b.handlers[eventType] = append(handlers[:i:i], handlers[i+1:]...)
			b.addStat(func(s *EventBusStats) { s.HandlersCount-- })

			b.logger.Info("Handler unsubscribed",
				zap.String("event_type", eventType),
				zap.String("handler_id", handler.GetHandlerID()),
			)
			return nil
		}
	}

	return fmt.Errorf("handler not found")
}

// Start starts the event bus workers
func (b *inMemoryEventBus) Start(ctx context.Context) error {
	b.logger.Info("Starting event bus", zap.Int("worker_count", b.config.WorkerCount))

	for i := 0; i < b.config.WorkerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
	return nil
}

// Stop drains queued events and stops the workers.
func (b *inMemoryEventBus) Stop(ctx context.Context) error {
	b.logger.Info("Stopping event bus")

	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Event bus stopped successfully")
	case <-ctx.Done():
		b.logger.Warn("Event bus stop timeout")
		return ctx.Err()
	}
	return nil
}

// Health checks the health of the event bus
func (b *inMemoryEventBus) Health() error {
	select {
	case <-b.ctx.Done():
		return fmt.Errorf("event bus is stopped")
	default:
	}

	queueDepth := len(b.eventQueue)
	if queueDepth > b.config.BufferSize*80/100 {
		return fmt.Errorf("event queue is %d%% full", queueDepth*100/b.config.BufferSize)
	}
	return nil
}

// Stats returns event bus statistics
func (b *inMemoryEventBus) Stats() *EventBusStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	stats := b.stats
	stats.QueueDepth = len(b.eventQueue)
	stats.Uptime = time.Since(b.startTime)

	if len(b.processingTimes) > 0 {
		var total time.Duration
		for _, t := range b.processingTimes {
			total += t
		}
		stats.AverageProcessTime = total / time.Duration(len(b.processingTimes))
	}
	return &stats
}

func (b *inMemoryEventBus) addStat(fn func(*EventBusStats)) {
	b.statsMu.Lock()
	fn(&b.stats)
	b.statsMu.Unlock()
}

// worker processes events from the queue until Stop, then drains what is
// left in the buffer.
func (b *inMemoryEventBus) worker(workerID int) {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.eventQueue:
			b.handleMessage(workerID, msg)
		case <-b.ctx.Done():
			for {
				select {
				case msg := <-b.eventQueue:
					b.handleMessage(workerID, msg)
				default:
					return
				}
			}
		}
	}
}

func (b *inMemoryEventBus) handleMessage(workerID int, msg eventMessage) {
	start := time.Now()

	if err := b.processEvent(msg.ctx, msg.event); err != nil {
		b.logger.Error("Failed to process event",
			zap.Int("worker_id", workerID),
			zap.String("event_id", msg.event.GetEventID()),
			zap.String("event_type", msg.event.GetEventType()),
			zap.Error(err),
		)
		b.addStat(func(s *EventBusStats) { s.EventsFailed++ })
	} else {
		b.addStat(func(s *EventBusStats) { s.EventsProcessed++ })
	}

	b.recordProcessingTime(time.Since(start))
}

// processEvent runs every handler subscribed to the event's type.
func (b *inMemoryEventBus) processEvent(ctx context.Context, event Event) error {
	eventType := event.GetEventType()

	b.mu.RLock()
	var allHandlers []EventHandler
	allHandlers = append(allHandlers, b.handlers[eventType]...)
	for pattern, handlers := range b.patternHandlers {
		if matchesPattern(eventType, pattern) {
			allHandlers = append(allHandlers, handlers...)
		}
	}
	b.mu.RUnlock()

	if len(allHandlers) == 0 {
		b.logger.Debug("No handlers found for event",
			zap.String("event_type", eventType),
			zap.String("event_id", event.GetEventID()),
		)
		return nil
	}

	failed := 0
	for _, handler := range allHandlers {
		if err := b.executeHandler(ctx, handler, event); err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("handler_id", handler.GetHandlerID()),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to execute %d out of %d handlers", failed, len(allHandlers))
	}
	return nil
}

// executeHandler executes a single handler with timeout and recovery
func (b *inMemoryEventBus) executeHandler(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Handler panicked",
				zap.String("handler_id", handler.GetHandlerID()),
				zap.String("event_type", event.GetEventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler %s panicked: %v", handler.GetHandlerID(), r)
		}
	}()

	handlerCtx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()

	return handler.Handle(handlerCtx, event)
}

func (b *inMemoryEventBus) recordProcessingTime(duration time.Duration) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	b.processingTimes = append(b.processingTimes, duration)
	if len(b.processingTimes) > b.maxProcessingTimes {
		b.processingTimes = b.processingTimes[1:]
	}
}

// matchesPattern supports "*" and trailing-wildcard prefixes such as "badge.*".
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(eventType, prefix)
	}
	return eventType == pattern
}
