package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"scribe/logger"

	"github.com/google/uuid"
)

const (
	EventShown    = "suggestion_shown"
	EventAccepted = "suggestion_accepted"
	EventRejected = "suggestion_rejected"
)

const (
	SuggestionContinuation = "CONTINUATION"
	SuggestionReplacement  = "REPLACEMENT"
)

type MetricsRequest struct {
	EventType      string `json:"event_type"`
	SuggestionType string `json:"suggestion_type"`
	Additions      int    `json:"additions"`
	Deletions      int    `json:"deletions"`
	GenerationID   string `json:"generation_id"`
	Lifespan       *int64 `json:"lifespan"`
	DebugInfo      string `json:"debug_info"`
	DeviceID       string `json:"device_id"`
}

// SuggestionMetrics describes one overlay for reporting
type SuggestionMetrics struct {
	GenerationID string
	Type         string
	Additions    int
	Deletions    int
	ShownAt      time.Time
}

// Counts is a snapshot of the local event counters
type Counts struct {
	Shown    int64
	Accepted int64
	Rejected int64
}

// Tracker counts suggestion events and, when a URL is set, reports them
type Tracker struct {
	url        string
	apiKey     string
	editorInfo string
	deviceID   string
	httpClient *http.Client

	shown    atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
	inflight sync.WaitGroup
}

// NewTracker creates a tracker. An empty url keeps the counters local.
func NewTracker(url, apiKey, editorInfo, dataDir string) *Tracker {
	return &Tracker{
		url:        url,
		apiKey:     apiKey,
		editorInfo: editorInfo,
		deviceID:   loadOrCreateDeviceID(dataDir),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *Tracker) TrackShown(m *SuggestionMetrics) {
	t.shown.Add(1)
	t.send(EventShown, m, nil)
}

func (t *Tracker) TrackAccepted(m *SuggestionMetrics) {
	t.accepted.Add(1)
	lifespan := time.Since(m.ShownAt).Milliseconds()
	t.send(EventAccepted, m, &lifespan)
}

func (t *Tracker) TrackRejected(m *SuggestionMetrics) {
	t.rejected.Add(1)
	lifespan := time.Since(m.ShownAt).Milliseconds()
	t.send(EventRejected, m, &lifespan)
}

// Counts returns the local counters
func (t *Tracker) Counts() Counts {
	return Counts{
		Shown:    t.shown.Load(),
		Accepted: t.accepted.Load(),
		Rejected: t.rejected.Load(),
	}
}

// Wait blocks until every report in flight has finished
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) send(event string, m *SuggestionMetrics, lifespan *int64) {
	if t.url == "" {
		return
	}
	req := &MetricsRequest{
		EventType:      event,
		SuggestionType: m.Type,
		Additions:      m.Additions,
		Deletions:      m.Deletions,
		GenerationID:   m.GenerationID,
		Lifespan:       lifespan,
		DebugInfo:      t.editorInfo,
		DeviceID:       t.deviceID,
	}

	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		body, err := json.Marshal(req)
		if err != nil {
			logger.Debug("metrics: marshal error: %v", err)
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
		if err != nil {
			logger.Debug("metrics: create request error: %v", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.httpClient.Do(httpReq)
		if err != nil {
			logger.Debug("metrics: send error: %v", err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			logger.Debug("metrics: server returned %d for %s", resp.StatusCode, req.EventType)
		} else {
			logger.Debug("metrics: sent %s (generation=%s)", req.EventType, req.GenerationID)
		}
	}()
}

func loadOrCreateDeviceID(dataDir string) string {
	if dataDir == "" {
		return uuid.NewString()
	}

	idPath := filepath.Join(dataDir, "device_id")

	data, err := os.ReadFile(idPath)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("metrics: could not create data dir %s: %v", dataDir, err)
		return id
	}
	if err := os.WriteFile(idPath, []byte(id), 0644); err != nil {
		logger.Warn("metrics: could not write device_id: %v", err)
	}
	return id
}
