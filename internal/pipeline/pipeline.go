package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/edgewatch/fleet-core/internal/fraud"
)

// Defaults applied when Config fields are zero.
const (
	defaultQueueSize = 100
	defaultCooldown  = 60 * time.Second

	// capabilityTimeout bounds each external call made while
	// processing one item.
	capabilityTimeout = 10 * time.Second

	// stopWait bounds how long Stop waits for the consumer to exit.
	stopWait = 5 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds pipeline tuning.
type Config struct {
	// QueueSize is the bounded queue capacity.
	QueueSize int

	// Cooldown is the per-subject attendance dedup window.
	Cooldown time.Duration
}

// Deps are the external capabilities the consumer calls into. All are
// optional; a nil capability disables the corresponding step.
type Deps struct {
	Detector   Detector
	Identifier Identifier
	Reporter   Reporter
	Recorder   Recorder
	Telemetry  TelemetryWriter
	Fraud      FraudChecker
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Enqueued   uint64 `json:"enqueued"`
	Dropped    uint64 `json:"dropped"`
	Processed  uint64 `json:"processed"`
	Duplicates uint64 `json:"duplicates"`
}

// Pipeline is the bounded single-consumer ingestion queue.
//
// Enqueue methods are safe for concurrent use by any number of
// producers and never block. The cooldown map is touched only by the
// consumer goroutine, so it needs no lock.
type Pipeline struct {
	cfg  Config
	deps Deps

	queue    chan Item
	cooldown map[string]time.Time

	logger Logger

	// now is overridable for tests.
	now func() time.Time

	stop chan struct{}
	done chan struct{}

	enqueued   atomic.Uint64
	dropped    atomic.Uint64
	processed  atomic.Uint64
	duplicates atomic.Uint64
}

// New creates a pipeline. Call Start to launch the consumer.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Pipeline{
		cfg:      cfg,
		deps:     deps,
		queue:    make(chan Item, cfg.QueueSize),
		cooldown: make(map[string]time.Time),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the pipeline. Call before Start.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// Start launches the consumer goroutine. Calling Start on a running
// pipeline is a no-op.
func (p *Pipeline) Start() {
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	p.logger.Info("ingestion pipeline started",
		"queue_size", p.cfg.QueueSize,
		"cooldown", p.cfg.Cooldown,
	)

	go p.consume()
}

// Stop signals the consumer to exit and waits (bounded) for it to
// finish the item in flight. Queued items are abandoned.
func (p *Pipeline) Stop() bool {
	if p.stop == nil {
		return true
	}
	close(p.stop)
	p.stop = nil

	select {
	case <-p.done:
		return true
	case <-time.After(stopWait):
		p.logger.Warn("pipeline consumer did not stop in time")
		return false
	}
}

// EnqueueImage hands a captured frame to the pipeline. Returns false
// if the queue is full and the frame was dropped.
func (p *Pipeline) EnqueueImage(img Image, metadata map[string]any) bool {
	return p.enqueue(Item{Kind: KindImage, Payload: img, Metadata: metadata})
}

// EnqueueAttendance hands an attendance assertion to the pipeline.
func (p *Pipeline) EnqueueAttendance(a Attendance, metadata map[string]any) bool {
	return p.enqueue(Item{Kind: KindAttendance, Payload: a, Metadata: metadata})
}

// EnqueueSensor hands a sensor reading to the pipeline.
func (p *Pipeline) EnqueueSensor(r SensorReading, metadata map[string]any) bool {
	return p.enqueue(Item{Kind: KindSensor, Payload: r, Metadata: metadata})
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:   p.enqueued.Load(),
		Dropped:    p.dropped.Load(),
		Processed:  p.processed.Load(),
		Duplicates: p.duplicates.Load(),
	}
}

// QueueDepth returns the number of items currently waiting.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// enqueue appends an item, dropping it if the queue is at capacity.
func (p *Pipeline) enqueue(item Item) bool {
	item.EnqueuedAt = p.now()

	select {
	case p.queue <- item:
		p.enqueued.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Warn("queue full, item dropped", "kind", item.Kind)
		return false
	}
}

// consume drains the queue one item at a time until stopped.
func (p *Pipeline) consume() {
	defer close(p.done)

	stop := p.stop
	for {
		select {
		case <-stop:
			return
		case item := <-p.queue:
			p.process(item)
			p.processed.Add(1)
		}
	}
}

// process handles one dequeued item.
func (p *Pipeline) process(item Item) {
	switch item.Kind {
	case KindImage:
		if img, ok := item.Payload.(Image); ok {
			p.processImage(img, item.Metadata)
		}
	case KindAttendance:
		if a, ok := item.Payload.(Attendance); ok {
			p.processAttendance(a, item.Metadata)
		}
	case KindSensor:
		if r, ok := item.Payload.(SensorReading); ok {
			p.processSensor(r, item.Metadata)
		}
	default:
		p.logger.Warn("unknown item kind", "kind", item.Kind)
	}
}

// processImage runs face detection and identification, feeding a
// resolved subject back in as an attendance item. At most one region
// per frame is processed, which throttles identification load on
// crowded frames.
func (p *Pipeline) processImage(img Image, metadata map[string]any) {
	if p.deps.Detector == nil || p.deps.Identifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	regions, err := p.deps.Detector.DetectRegions(ctx, img.Data)
	if err != nil {
		p.logger.Warn("face detection failed", "device_id", img.DeviceID, "error", err)
		return
	}
	if len(regions) == 0 {
		p.logger.Debug("no faces in frame", "device_id", img.DeviceID)
		return
	}

	subjectID, ok, err := p.deps.Identifier.Identify(ctx, img.Data, regions[0])
	if err != nil {
		p.logger.Warn("identification failed", "device_id", img.DeviceID, "error", err)
		return
	}
	if !ok {
		p.logger.Debug("face not recognized", "device_id", img.DeviceID)
		return
	}

	ts := img.CapturedAt
	if ts.IsZero() {
		ts = p.now()
	}
	p.EnqueueAttendance(Attendance{
		SubjectID: subjectID,
		DeviceID:  img.DeviceID,
		Timestamp: ts,
		Method:    "face",
	}, metadata)
}

// processAttendance applies the cooldown window, fraud heuristics,
// local recording, and best-effort reporting.
func (p *Pipeline) processAttendance(a Attendance, metadata map[string]any) {
	if a.Timestamp.IsZero() {
		a.Timestamp = p.now()
	}

	if last, seen := p.cooldown[a.SubjectID]; seen && a.Timestamp.Before(last.Add(p.cfg.Cooldown)) {
		p.duplicates.Add(1)
		p.logger.Debug("duplicate attendance suppressed",
			"subject_id", a.SubjectID,
			"device_id", a.DeviceID,
		)
		return
	}
	p.cooldown[a.SubjectID] = a.Timestamp

	if p.deps.Fraud != nil {
		flagged, reason := p.deps.Fraud.Check(fraud.Event{
			SubjectID:   a.SubjectID,
			DeviceID:    a.DeviceID,
			Timestamp:   a.Timestamp,
			Latitude:    a.Latitude,
			Longitude:   a.Longitude,
			HasLocation: a.HasLocation,
		})
		if flagged {
			a.Flagged = true
			a.FlagReason = reason
			p.logger.Warn("suspicious attendance flagged",
				"subject_id", a.SubjectID,
				"device_id", a.DeviceID,
				"reason", reason,
			)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	if p.deps.Recorder != nil {
		if err := p.deps.Recorder.RecordAttendance(ctx, a); err != nil {
			p.logger.Warn("recording attendance failed",
				"subject_id", a.SubjectID,
				"error", err,
			)
		}
	}

	if p.deps.Reporter != nil {
		if err := p.deps.Reporter.ReportAttendance(ctx, a); err != nil {
			p.logger.Warn("reporting attendance failed",
				"subject_id", a.SubjectID,
				"error", err,
			)
			return
		}
	}

	p.logger.Info("attendance accepted",
		"subject_id", a.SubjectID,
		"device_id", a.DeviceID,
		"method", a.Method,
	)
}

// processSensor writes the reading to telemetry and forwards it to the
// reporting sink only when the metadata asks for it.
func (p *Pipeline) processSensor(r SensorReading, metadata map[string]any) {
	if r.Timestamp.IsZero() {
		r.Timestamp = p.now()
	}

	if p.deps.Telemetry != nil {
		p.deps.Telemetry.WriteSensorReading(r)
	}

	report, _ := metadata[MetaReport].(bool)
	if !report {
		p.logger.Debug("sensor reading retained locally",
			"device_id", r.DeviceID,
			"sensor", r.Sensor,
			"value", r.Value,
		)
		return
	}

	if p.deps.Reporter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	if err := p.deps.Reporter.ReportSensorReading(ctx, r); err != nil {
		p.logger.Warn("reporting sensor reading failed",
			"device_id", r.DeviceID,
			"sensor", r.Sensor,
			"error", err,
		)
	}
}
