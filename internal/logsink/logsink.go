// Package logsink ships structured log records to a remote log-ingestion
// endpoint (Loki push API shape). Records are buffered and sent in batches;
// the transport implements flush.Flusher so the shutdown sequence can drain
// it before exit.
package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config describes the remote sink and the transport's identity labels.
type Config struct {
	// URL is the push endpoint, e.g. http://loki:3100/loki/api/v1/push.
	URL string
	// Stream, Service, Environment are the static routing labels. Nothing
	// event-specific may join them: variable fields travel inside the
	// record's metadata object, keeping routing-key cardinality fixed.
	Stream      string
	Service     string
	Environment string

	// BatchSize triggers an async send when the buffer reaches it.
	BatchSize int
	// FlushInterval is how often buffered records are sent in the background.
	FlushInterval time.Duration

	MinLevel zapcore.Level
	// HTTPClient may be nil for a default client with a short timeout.
	HTTPClient *http.Client
}

// record is one buffered log line.
type record struct {
	ts       time.Time
	message  string
	metadata map[string]interface{}
}

// Transport is a zapcore.Core that buffers entries for the remote sink.
// Register it as a tee alongside the console core.
type Transport struct {
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	pending []record

	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a started Transport. The background loop sends batches every
// FlushInterval until Close or process exit; Flush drains synchronously.
func New(cfg Config) *Transport {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	t := &Transport{
		cfg:    cfg,
		client: client,
		stop:   make(chan struct{}),
	}
	go t.loop()
	return t
}

// Name identifies the transport in flush logs.
func (t *Transport) Name() string { return "logsink" }

// Close stops the background loop. The final drain still goes through Flush.
func (t *Transport) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Flush sends everything buffered, bounded by ctx. Implements flush.Flusher.
func (t *Transport) Flush(ctx context.Context) error {
	t.mu.Lock()
	batch := t.pending
	t.pending = nil
	t.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := t.send(ctx, batch); err != nil {
		return fmt.Errorf("drain %d buffered records: %w", len(batch), err)
	}
	return nil
}

func (t *Transport) loop() {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FlushInterval)
			_ = t.Flush(ctx) // periodic send is best effort; the final Flush reports errors
			cancel()
		case <-t.stop:
			return
		}
	}
}

// Enabled implements zapcore.LevelEnabler.
func (t *Transport) Enabled(lvl zapcore.Level) bool {
	return lvl >= t.cfg.MinLevel
}

// With implements zapcore.Core. Accumulated fields become part of each
// record's metadata.
func (t *Transport) With(fields []zapcore.Field) zapcore.Core {
	return &boundCore{transport: t, fields: fields}
}

// Check implements zapcore.Core.
func (t *Transport) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if t.Enabled(ent.Level) {
		return ce.AddCore(ent, t)
	}
	return ce
}

// Write buffers the entry. Never blocks on the network: the send happens in
// the background loop or in Flush.
func (t *Transport) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	t.enqueue(ent, nil, fields)
	return nil
}

// Sync implements zapcore.Core with a short-bounded drain, so logger.Sync
// callers outside the shutdown path still get a best-effort send.
func (t *Transport) Sync() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return t.Flush(ctx)
}

func (t *Transport) enqueue(ent zapcore.Entry, bound, fields []zapcore.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range bound {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	meta := enc.Fields
	meta["level"] = ent.Level.String()
	if ent.Caller.Defined {
		meta["caller"] = ent.Caller.TrimmedPath()
	}
	rec := record{
		ts:       ent.Time,
		message:  ent.Message,
		metadata: meta,
	}

	t.mu.Lock()
	t.pending = append(t.pending, rec)
	full := len(t.pending) >= t.cfg.BatchSize
	t.mu.Unlock()

	if full {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), t.cfg.FlushInterval)
			defer cancel()
			_ = t.Flush(ctx)
		}()
	}
}

// pushPayload is the Loki push API body: one stream keyed by the static
// routing labels, values as [nanosecond-timestamp, line] pairs.
type pushPayload struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// line is the JSON log line inside each value. All variable fields live in
// Metadata, never in the routing labels.
type line struct {
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (t *Transport) send(ctx context.Context, batch []record) error {
	values := make([][2]string, 0, len(batch))
	for _, rec := range batch {
		body, err := json.Marshal(line{
			Message:   rec.message,
			Timestamp: rec.ts.UTC().Format(time.RFC3339Nano),
			Metadata:  rec.metadata,
		})
		if err != nil {
			// Unmarshalable metadata; keep the message rather than drop the record.
			body = []byte(fmt.Sprintf(`{"message":%q}`, rec.message))
		}
		values = append(values, [2]string{
			strconv.FormatInt(rec.ts.UnixNano(), 10),
			string(body),
		})
	}

	payload := pushPayload{Streams: []stream{{
		Stream: map[string]string{
			"stream":      t.cfg.Stream,
			"service":     t.cfg.Service,
			"environment": t.cfg.Environment,
		},
		Values: values,
	}}}

	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post log batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("log sink returned %s", resp.Status)
	}
	return nil
}

// boundCore carries fields added via With back into the parent transport.
type boundCore struct {
	transport *Transport
	fields    []zapcore.Field
}

func (c *boundCore) Enabled(lvl zapcore.Level) bool { return c.transport.Enabled(lvl) }

func (c *boundCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &boundCore{transport: c.transport, fields: merged}
}

func (c *boundCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *boundCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.transport.enqueue(ent, c.fields, fields)
	return nil
}

func (c *boundCore) Sync() error { return c.transport.Sync() }
