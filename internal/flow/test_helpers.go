package flow

import (
	"context"
	"sync"

	"github.com/BTreeMap/NamePlay/internal/models"
)

// StaticGenerator is a Generator that always returns the same result and records requests.
type StaticGenerator struct {
	mu       sync.Mutex
	Result   models.GenerationResult
	Requests []models.GenerationRequest
}

// NewStaticGenerator creates a StaticGenerator returning res.
func NewStaticGenerator(res models.GenerationResult) *StaticGenerator {
	return &StaticGenerator{Result: res}
}

// Generate records req and returns the configured result.
func (g *StaticGenerator) Generate(ctx context.Context, req models.GenerationRequest) models.GenerationResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	return g.Result
}

// Calls returns how many times Generate ran.
func (g *StaticGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}
