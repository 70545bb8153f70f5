// Package signals dispatches typed operation events. Every public store
// operation emits one signal carrying the row keys it touched, the item
// count and the elapsed time; handlers subscribe for auditing, cache
// invalidation or metrics. A hub also feeds two OpenTelemetry instruments so
// deployments get operation counts and latencies without writing a handler.
package signals

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Type identifies a signal; the form is "<store>.<operation>".
type Type string

const (
	TimeSeriesPut    Type = "timeseries.put"
	TimeSeriesGet    Type = "timeseries.get"
	TimeSeriesLast   Type = "timeseries.last"
	TimeSeriesDelete Type = "timeseries.delete"
	EventsPut        Type = "events.put"
	EventsGet        Type = "events.get"
	EventsLast       Type = "events.last"
	EventsDelete     Type = "events.delete"
	ActivityIncr     Type = "activity.incr"
	ActivityGet      Type = "activity.get"
	MetadataPut      Type = "metadata.put"
	MetadataGet      Type = "metadata.get"
	ConfigPut        Type = "config.put"
	ConfigGet        Type = "config.get"
)

// Event is one emitted signal.
type Event struct {
	Type    Type
	Method  string
	Count   int
	RowKeys []string
	Elapsed time.Duration
	When    time.Time
}

// Handler receives signals. Handler errors are logged, never propagated;
// the hub is resilient.
type Handler interface {
	ID() string
	Handles() []Type
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	Name  string
	Types []Type
	Fn    func(ctx context.Context, ev Event) error
}

func (h HandlerFunc) ID() string      { return h.Name }
func (h HandlerFunc) Handles() []Type { return h.Types }
func (h HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return h.Fn(ctx, ev)
}

// Hub dispatches signals to registered handlers and the otel instruments.
type Hub struct {
	mu       sync.RWMutex
	handlers []Handler

	ops     metric.Int64Counter
	latency metric.Float64Histogram
}

// NewHub creates a hub with instruments from the global meter provider.
func NewHub() *Hub {
	meter := otel.Meter("github.com/cattledb/cattledb")
	ops, err := meter.Int64Counter("cattledb.store.operations",
		metric.WithDescription("store operations by signal type"))
	if err != nil {
		log.Printf("signals: operations counter: %v", err)
	}
	latency, err := meter.Float64Histogram("cattledb.store.latency",
		metric.WithDescription("store operation latency"),
		metric.WithUnit("s"))
	if err != nil {
		log.Printf("signals: latency histogram: %v", err)
	}
	return &Hub{ops: ops, latency: latency}
}

// Register adds a handler.
func (h *Hub) Register(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers = append(h.handlers, handler)
}

// Handlers returns the registered handlers.
func (h *Hub) Handlers() []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Handler, len(h.handlers))
	copy(out, h.handlers)
	return out
}

// Emit dispatches one signal. A nil hub is a no-op so stores never need to
// guard their emit calls.
func (h *Hub) Emit(ctx context.Context, ev Event) {
	if h == nil {
		return
	}
	if ev.When.IsZero() {
		ev.When = time.Now()
	}

	attrs := metric.WithAttributes(
		attribute.String("signal", string(ev.Type)),
		attribute.String("method", ev.Method),
	)
	if h.ops != nil {
		h.ops.Add(ctx, 1, attrs)
	}
	if h.latency != nil {
		h.latency.Record(ctx, ev.Elapsed.Seconds(), attrs)
	}

	h.mu.RLock()
	handlers := h.matching(ev.Type)
	h.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler.Handle(ctx, ev); err != nil {
			log.Printf("signals: handler %q error for %s: %v", handler.ID(), ev.Type, err)
		}
	}
}

// matching must be called with at least a read lock held.
func (h *Hub) matching(t Type) []Handler {
	var matched []Handler
	for _, handler := range h.handlers {
		for _, ht := range handler.Handles() {
			if ht == t {
				matched = append(matched, handler)
				break
			}
		}
	}
	return matched
}
