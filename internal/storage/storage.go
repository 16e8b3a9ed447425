// Package storage keeps batch scan results in a JSON file so an
// interrupted run can resume.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/maltedev/product-scanner/internal/models"
)

const (
	StatusCompleted = "completed"
	StatusFallback  = "fallback"
	StatusFailed    = "failed"
)

type ScanResult struct {
	URL           string                 `json:"url"`
	Platform      string                 `json:"platform"`
	Title         string                 `json:"title"`
	TotalPrice    float64                `json:"total_price"`
	Currency      string                 `json:"currency"`
	OriginCountry string                 `json:"origin_country"`
	Status        string                 `json:"status"`
	Attempts      int                    `json:"attempts"`
	Error         string                 `json:"error,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Product       *models.ScrapedProduct `json:"product,omitempty"`
}

// ResultFromProduct summarises a scan; a fallback product gets
// StatusFallback.
func ResultFromProduct(p *models.ScrapedProduct) *ScanResult {
	status := StatusCompleted
	if p.IsFallback {
		status = StatusFallback
	}
	return &ScanResult{
		URL:           p.URL,
		Platform:      string(p.Platform),
		Title:         p.Title,
		TotalPrice:    p.Total(),
		Currency:      p.Currency,
		OriginCountry: p.OriginCountry,
		Status:        status,
		Product:       p,
	}
}

// ResultStore is a URL-keyed result file. Every write rewrites the file
// through a temp file and rename.
type ResultStore struct {
	mu       sync.RWMutex
	results  map[string]*ScanResult
	filename string
}

func NewResultStore(filename string) (*ResultStore, error) {
	s := &ResultStore{
		results:  make(map[string]*ScanResult),
		filename: filename,
	}
	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load results %s: %w", filename, err)
	}
	return s, nil
}

// Put stores result, carrying the attempt count forward from any earlier
// result for the same URL.
func (s *ResultStore) Put(result *ScanResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.URL == "" {
		return fmt.Errorf("url is required")
	}

	if prev, ok := s.results[result.URL]; ok {
		result.Attempts = prev.Attempts
	}
	result.Attempts++
	result.UpdatedAt = time.Now()

	s.results[result.URL] = result
	return s.save()
}

func (s *ResultStore) Get(rawURL string) (*ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[rawURL]
	return r, ok
}

// Done reports whether rawURL already has real (non-fallback) data.
func (s *ResultStore) Done(rawURL string) bool {
	r, ok := s.Get(rawURL)
	return ok && r.Status == StatusCompleted
}

// All returns results sorted by URL.
func (s *ResultStore) All() []*ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ScanResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (s *ResultStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int)
	for _, r := range s.results {
		stats[r.Status]++
	}
	stats["total"] = len(s.results)
	return stats
}

func (s *ResultStore) save() error {
	data, err := json.MarshalIndent(s.results, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filename)
}

func (s *ResultStore) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.results)
}
