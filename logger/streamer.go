package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Custom log level for NOTICE (below DebugLevel, non-error informational logs)
const NoticeLevel zapcore.Level = -2

const (
	LayerService   = "service"
	LayerTransport = "transport"
	LayerRunner    = "runner"
)

// logEntry represents a single log entry for Better Stack
type logEntry struct {
	Timestamp  string         `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	TraceID    string         `json:"traceID"` // run or workspace id
	Layer      string         `json:"layer"`
	Attributes map[string]any `json:"attributes"`
}

type StreamerConfig struct {
	SourceToken string
	Environment string
	UploadURL   string
	// FilePath receives entries in development; defaults to app.log.
	FilePath string
}

// LogStreamer streams service-level events keyed by trace ID. In
// development entries are appended to a file; otherwise they are posted to
// Better Stack when an upload URL is configured. Every entry is mirrored to
// zap.
type LogStreamer struct {
	cfg        StreamerConfig
	logger     *zap.Logger
	client     *http.Client
	fileWriter io.Writer
	file       *os.File
	inflight   sync.WaitGroup

	// mu guards closed, file writes and inflight.Add so nothing starts
	// once Close has begun waiting.
	mu     sync.Mutex
	closed bool
}

func NewLogStreamer(cfg StreamerConfig, logger *zap.Logger) *LogStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	streamer := &LogStreamer{cfg: cfg, logger: logger}

	if cfg.Environment == "development" {
		path := cfg.FilePath
		if path == "" {
			path = "app.log"
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Error("Failed to open log file", zap.Error(err))
			streamer.fileWriter = os.Stderr
		} else {
			streamer.file = f
			streamer.fileWriter = f
		}
	} else if cfg.UploadURL != "" {
		streamer.client = &http.Client{Timeout: 10 * time.Second}
	}

	return streamer
}

// Log records one event. Entries without a trace ID are dropped.
func (s *LogStreamer) Log(level zapcore.Level, traceID string, message string, attributes map[string]any, layer string, err error) {
	if traceID == "" {
		return
	}

	attrs := make(map[string]any, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	if err != nil {
		attrs["error"] = err.Error()
	}

	entry := logEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      levelString(level),
		Message:    message,
		TraceID:    traceID,
		Layer:      layer,
		Attributes: attrs,
	}

	body, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		s.logger.Error("Failed to marshal log", zap.Error(marshalErr))
		return
	}

	switch {
	case s.fileWriter != nil:
		var writeErr error
		s.mu.Lock()
		if !s.closed {
			_, writeErr = s.fileWriter.Write(append(body, '\n'))
		}
		s.mu.Unlock()
		if writeErr != nil {
			s.logger.Error("Failed to write log to file", zap.Error(writeErr))
		}
	case s.client != nil:
		s.send(body)
	}

	zapLevel := level
	if zapLevel < zapcore.DebugLevel {
		zapLevel = zapcore.DebugLevel
	}
	s.logger.Log(zapLevel, message,
		zap.String("traceID", traceID),
		zap.String("layer", layer),
		zap.Any("attributes", attrs))
}

func (s *LogStreamer) send(body []byte) {
	req, err := http.NewRequest(http.MethodPost, s.cfg.UploadURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("Failed to create HTTP request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.SourceToken)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Error("Failed to send log to Better Stack", zap.Error(err))
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			s.logger.Error("Unexpected response from Better Stack", zap.String("status", resp.Status))
		}
	}()
}

// Close waits for pending uploads and closes the development log file.
// Entries logged after Close still reach zap but are not streamed.
func (s *LogStreamer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

func levelString(level zapcore.Level) string {
	switch level {
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.InfoLevel:
		return "INFO"
	case NoticeLevel:
		return "NOTICE"
	case zapcore.DebugLevel:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// New builds the process logger: JSON in production, console otherwise.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
