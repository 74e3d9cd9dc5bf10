package telemetry

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// Publisher is the sink for flushed telemetry envelopes.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

const breadcrumbLimit = 50

// Breadcrumb is a lightweight trace of recent activity attached to flushes.
type Breadcrumb struct {
	At       time.Time `json:"at"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
}

// Report is a deduplicated error occurrence.
type Report struct {
	Fingerprint string         `json:"fingerprint"`
	Operation   string         `json:"operation"`
	Message     string         `json:"message"`
	Fields      map[string]any `json:"fields,omitempty"`
	Count       int            `json:"count"`
	FirstSeen   time.Time      `json:"first_seen"`
	LastSeen    time.Time      `json:"last_seen"`
}

// Envelope is the wire shape published to the sink.
type Envelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	Reports       []Report     `json:"reports"`
	Breadcrumbs   []Breadcrumb `json:"breadcrumbs"`
}

// Collector buffers error reports and breadcrumbs, deduplicates reports by
// fingerprint, and flushes batches to the publisher on a timer. All buffer
// access is mutex-guarded; callers may report from any goroutine.
type Collector struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string

	mu      sync.Mutex
	reports map[string]*Report
	order   []string
	crumbs  []Breadcrumb

	done chan struct{}
	wg   sync.WaitGroup
}

// NewCollector builds a Collector and starts its flush loop.
func NewCollector(publisher Publisher, routingKey, service, environment string, interval time.Duration) *Collector {
	c := &Collector{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		reports:     make(map[string]*Report),
		done:        make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop(interval)
	return c
}

func (c *Collector) loop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Flush(context.Background())
		case <-c.done:
			return
		}
	}
}

// Breadcrumb records a recent-activity marker. The buffer keeps only the
// newest breadcrumbLimit entries.
func (c *Collector) Breadcrumb(category, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crumbs = append(c.crumbs, Breadcrumb{At: time.Now().UTC(), Category: category, Message: message})
	if len(c.crumbs) > breadcrumbLimit {
		c.crumbs = c.crumbs[len(c.crumbs)-breadcrumbLimit:]
	}
}

// CaptureError buffers a structured error report. Repeated failures with the
// same operation and message collapse into one report with a count.
func (c *Collector) CaptureError(operation string, err error, fields map[string]any) {
	if err == nil {
		return
	}
	log.Printf("telemetry: %s: %v fields=%v", operation, err, fields)

	fp := fingerprint(operation, err.Error())
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.reports[fp]; ok {
		existing.Count++
		existing.LastSeen = now
		return
	}
	c.reports[fp] = &Report{
		Fingerprint: fp,
		Operation:   operation,
		Message:     err.Error(),
		Fields:      fields,
		Count:       1,
		FirstSeen:   now,
		LastSeen:    now,
	}
	c.order = append(c.order, fp)
}

// Flush publishes and clears the buffered reports. An empty buffer publishes
// nothing.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.reports) == 0 {
		c.mu.Unlock()
		return
	}
	reports := make([]Report, 0, len(c.order))
	for _, fp := range c.order {
		reports = append(reports, *c.reports[fp])
	}
	crumbs := make([]Breadcrumb, len(c.crumbs))
	copy(crumbs, c.crumbs)
	c.reports = make(map[string]*Report)
	c.order = nil
	c.crumbs = nil
	c.mu.Unlock()

	envelope := Envelope{
		SchemaVersion: 1,
		EventType:     "error_report",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       c.service,
		Environment:   c.environment,
		Reports:       reports,
		Breadcrumbs:   crumbs,
	}
	if err := c.publisher.Publish(ctx, c.routingKey, envelope); err != nil {
		log.Printf("telemetry flush failed: %v", err)
	}
}

// Close stops the flush loop and drains the buffer.
func (c *Collector) Close() {
	close(c.done)
	c.wg.Wait()
	c.Flush(context.Background())
}

func fingerprint(operation, message string) string {
	h := fnv.New64a()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return fmt.Sprintf("%016x", h.Sum64())
}
