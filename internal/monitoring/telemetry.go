// Package monitoring records gateway call telemetry to JSONL files.
//
// DESIGN: Tracker writes structured events as JSONL (one JSON object per
// line), appended immediately after each event for real-time logging. One
// CallEvent is recorded per gateway execution, cache hits included.
package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

// TelemetryConfig controls what the tracker records and where.
type TelemetryConfig struct {
	Enabled     bool
	LogPath     string
	LogToStdout bool
}

// CallEvent is one completed gateway call.
type CallEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	CacheHit   bool      `json:"cache_hit"`
	Attempts   int       `json:"attempts"`
	Replayed   bool      `json:"replayed,omitempty"`
	Status     int       `json:"status,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Tracker handles telemetry event recording to file and stdout.
type Tracker struct {
	config  TelemetryConfig
	logPath string

	mu        sync.Mutex
	callCount int
}

// NewTracker creates a telemetry tracker. With telemetry disabled it is a
// cheap no-op that still satisfies the gateway observer hook.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg}

	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0750); err != nil {
		return nil, err
	}
	t.logPath = cfg.LogPath
	if _, err := os.Stat(cfg.LogPath); os.IsNotExist(err) {
		if f, err := os.Create(cfg.LogPath); err == nil {
			_ = f.Close()
		}
	}

	return t, nil
}

// Observe adapts gateway call stats into a recorded event. Registered as the
// gateway's observer callback.
func (t *Tracker) Observe(stats taiga.CallStats) {
	if !t.config.Enabled {
		return
	}

	event := &CallEvent{
		Timestamp:  time.Now(),
		RequestID:  uuid.NewString(),
		Method:     stats.Method,
		Path:       stats.Path,
		CacheHit:   stats.CacheHit,
		Attempts:   stats.Attempts,
		Replayed:   stats.Replayed,
		Status:     stats.Status,
		ErrorKind:  string(stats.ErrorKind),
		DurationMs: stats.Duration.Milliseconds(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		reqID := event.RequestID
		if len(reqID) > 8 {
			reqID = reqID[:8]
		}
		log.Info().
			Str("request_id", reqID).
			Str("method", event.Method).
			Str("path", event.Path).
			Bool("cache_hit", event.CacheHit).
			Int("attempts", event.Attempts).
			Int("status", event.Status).
			Msg("telemetry")
	}

	if t.logPath != "" {
		if err := appendJSONL(t.logPath, event); err != nil {
			log.Error().Err(err).Str("path", t.logPath).Msg("telemetry: failed to write call event")
		} else {
			t.callCount++
		}
	}
}

// appendJSONL appends a single JSON object as a line to the file.
func appendJSONL(path string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(data)
	return err
}

// Close logs a session summary.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.logPath != "" && t.callCount > 0 {
		log.Info().
			Str("path", t.logPath).
			Int("events", t.callCount).
			Msg("telemetry: session complete")
	}
	return nil
}
