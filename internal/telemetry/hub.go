package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rjboer/sdragc/internal/logging"
)

// Config is the runtime configuration exposed by the hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 100_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 3600}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	return cfg, nil
}

// Hub keeps a bounded history of gain reports and fans new ones out to
// live subscribers. Slow subscribers miss reports rather than block.
type Hub struct {
	mu          sync.RWMutex
	history     []GainReport
	subscribers map[chan GainReport]struct{}
	config      Config
	logger      logging.Logger
}

// NewHub builds a hub; historyLimit <= 0 selects the default.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg, err := validateConfig(Config{HistoryLimit: historyLimit}, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	return &Hub{
		subscribers: make(map[chan GainReport]struct{}),
		config:      cfg,
		logger:      logger.With(logging.Subsystem("telemetry")),
	}
}

// ReportGain implements Reporter.
func (h *Hub) ReportGain(report GainReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, report)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- report:
		default:
			h.logger.Debug("dropping report for slow subscriber", logging.F("block", report.Block))
		}
	}
}

// History returns a copy of the stored reports, oldest first.
func (h *Hub) History() []GainReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]GainReport, len(h.history))
	copy(out, h.history)
	return out
}

// Latest returns the newest report, if any.
func (h *Hub) Latest() (GainReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return GainReport{}, false
	}
	return h.history[len(h.history)-1], true
}

// ConfigSnapshot returns the current configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live reports. The returned func
// unregisters it and closes the channel.
func (h *Hub) Subscribe() (<-chan GainReport, func()) {
	ch := make(chan GainReport, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.History())
}

func (h *Hub) handleSummary(w http.ResponseWriter, _ *http.Request) {
	latest, ok := h.Latest()
	if !ok {
		http.Error(w, "no gain reports yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, Summarize(latest))
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	cfg, err := validateConfig(incoming, h.config)
	if err == nil {
		h.applyConfig(cfg)
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("telemetry config updated", logging.F("history_limit", cfg.HistoryLimit))
	writeJSON(w, cfg)
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, report := range h.History() {
		writeEvent(w, report)
	}
	flusher.Flush()

	for {
		select {
		case report, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, report)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, report GainReport) {
	payload, _ := json.Marshal(report)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}
