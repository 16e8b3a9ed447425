package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/maltedev/product-scanner/internal/database"
	"github.com/maltedev/product-scanner/internal/events"
	"github.com/maltedev/product-scanner/internal/models"
	"github.com/maltedev/product-scanner/internal/scanner"
)

const (
	maxRequestBody = 64 << 10
	maxHistory     = 100
)

// ProductScanner is implemented by *scanner.Scanner.
type ProductScanner interface {
	Scan(ctx context.Context, rawURL string) (*models.ScrapedProduct, error)
	Extract(ctx context.Context, rawURL string) (*models.ScrapedProduct, error)
	QuickPrice(ctx context.Context, rawURL string) float64
}

// OutboxStatter reports the relay backlog; nil when persistence is off.
type OutboxStatter interface {
	Stats(ctx context.Context) (database.OutboxStats, error)
}

type Handlers struct {
	scanner  ProductScanner
	strict   ProductScanner
	recorder events.Recorder
	outbox   OutboxStatter
	logger   *slog.Logger
}

// NewHandlers wires the handlers. strict serves /api/get-product-info and
// defaults to s; recorder defaults to events.NopRecorder.
func NewHandlers(s, strict ProductScanner, recorder events.Recorder, outbox OutboxStatter, logger *slog.Logger) *Handlers {
	if strict == nil {
		strict = s
	}
	if recorder == nil {
		recorder = events.NopRecorder{}
	}
	return &Handlers{
		scanner:  s,
		strict:   strict,
		recorder: recorder,
		outbox:   outbox,
		logger:   logger.With("component", "api"),
	}
}

type ProductInfoRequest struct {
	URL string `json:"url"`
}

// ProductInfoResponse is the success body. Failures go through respondError.
type ProductInfoResponse struct {
	Success  bool    `json:"success"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Platform string  `json:"platform"`
}

// GetProductInfo renders the page and extracts it without any fallback.
func (h *Handlers) GetProductInfo(w http.ResponseWriter, r *http.Request) {
	req, err := decodeURLRequest(w, r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.strict.Extract(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, scanner.ErrInvalidURL) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to extract product", "url", req.URL, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to scrape product: "+err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, ProductInfoResponse{
		Success:  true,
		Title:    product.Title,
		Price:    product.Price,
		Currency: product.Currency,
		Platform: string(product.Platform),
	})
}

// Scan returns the full product, falling back to synthetic data when the
// page cannot be read.
func (h *Handlers) Scan(w http.ResponseWriter, r *http.Request) {
	req, err := decodeURLRequest(w, r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.scanner.Scan(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, scanner.ErrInvalidURL) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("scan aborted", "url", req.URL, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "scan aborted")
		return
	}

	if err := h.recorder.RecordScan(r.Context(), product); err != nil {
		h.logger.Error("failed to record scan", "url", req.URL, "error", err)
	}

	h.respondJSON(w, http.StatusOK, product)
}

type QuickPriceResponse struct {
	URL   string  `json:"url"`
	Price float64 `json:"price"`
}

func (h *Handlers) QuickPrice(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.respondJSON(w, http.StatusOK, QuickPriceResponse{
		URL:   rawURL,
		Price: h.scanner.QuickPrice(r.Context(), rawURL),
	})
}

func (h *Handlers) ListScans(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}

	scans, err := h.recorder.RecentScans(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list scans", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}

	h.respondJSON(w, http.StatusOK, scans)
}

// Health reports ok, or warning/error when the outbox backs up.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		stats, err := h.outbox.Stats(r.Context())
		switch {
		case err != nil:
			h.logger.Error("failed to read outbox stats", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case stats.DeadLetter > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case stats.Pending > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if err == nil {
			health["outbox"] = stats
		}
	}

	h.respondJSON(w, status, health)
}

func decodeURLRequest(w http.ResponseWriter, r *http.Request) (ProductInfoRequest, error) {
	var req ProductInfoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errors.New("url is required")
		}
		return req, errors.New("invalid request body")
	}
	if req.URL == "" {
		return req, errors.New("url is required")
	}
	return req, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
