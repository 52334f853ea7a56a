// Package namegen turns a completed answer record into a display-ready
// GenerationResult, substituting a fixed placeholder whenever the backing
// service fails.
package namegen

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
)

// ErrNilPayload is returned by Normalize when the service produced no payload at all.
var ErrNilPayload = errors.New("generation service returned no payload")

// Service produces a raw generation payload for a request.
type Service interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)
}

// Aggregator performs a single generation attempt and never fails.
type Aggregator struct {
	service Service
}

// NewAggregator creates an Aggregator backed by service.
func NewAggregator(service Service) *Aggregator {
	return &Aggregator{service: service}
}

// Generate returns the normalized result for req, or models.FallbackResult
// when the service errors. A payload without names yields an empty result.
func (a *Aggregator) Generate(ctx context.Context, req models.GenerationRequest) models.GenerationResult {
	if a == nil || a.service == nil {
		slog.Error("Aggregator.Generate: no generation service configured")
		return models.FallbackResult()
	}

	raw, err := a.service.Generate(ctx, req)
	if err != nil {
		slog.Warn("Aggregator.Generate: generation failed, using fallback", "kind", failureKind(err), "error", err)
		return models.FallbackResult()
	}

	result, err := Normalize(raw)
	if err != nil {
		slog.Warn("Aggregator.Generate: unusable payload, using fallback", "error", err)
		return models.FallbackResult()
	}

	slog.Debug("Aggregator.Generate: names generated", "count", len(result.Names), "top", result.TopName())
	return result
}

// Normalize converts a raw payload into a GenerationResult. Absent reasons
// become empty maps and counts are padded with zeros or truncated to match
// names. The single-name legacy shape maps to one name with count 1.
func Normalize(raw *models.GenerationResponse) (models.GenerationResult, error) {
	if raw == nil {
		return models.GenerationResult{}, ErrNilPayload
	}

	var (
		names  []string
		counts []int
	)
	for i, n := range raw.Names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		c := 0
		if i < len(raw.NamesCount) {
			c = raw.NamesCount[i]
		}
		names = append(names, n)
		counts = append(counts, c)
	}

	if len(names) == 0 {
		return normalizeLegacy(raw)
	}

	reasons := make(map[string]map[string]string, len(names))
	for _, n := range names {
		reasons[n] = copyReasons(raw.Reasons[n])
	}

	total := 0
	if raw.TotalCount != nil {
		total = *raw.TotalCount
	} else {
		for _, c := range counts {
			total += c
		}
	}

	return models.GenerationResult{
		Names:      names,
		Reasons:    reasons,
		Counts:     counts,
		TotalCount: total,
	}, nil
}

func normalizeLegacy(raw *models.GenerationResponse) (models.GenerationResult, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return emptyResult(raw), nil
	}
	reason := map[string]string{}
	if raw.Explanation != "" {
		reason["explanation"] = raw.Explanation
	}
	total := 1
	if raw.TotalCount != nil {
		total = *raw.TotalCount
	}
	return models.GenerationResult{
		Names:      []string{name},
		Reasons:    map[string]map[string]string{name: reason},
		Counts:     []int{1},
		TotalCount: total,
	}, nil
}

// emptyResult is a well-formed result for a successful payload that named nobody.
func emptyResult(raw *models.GenerationResponse) models.GenerationResult {
	total := 0
	if raw.TotalCount != nil {
		total = *raw.TotalCount
	}
	return models.GenerationResult{
		Names:      []string{},
		Reasons:    map[string]map[string]string{},
		Counts:     []int{},
		TotalCount: total,
	}
}

func copyReasons(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, nameapi.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, nameapi.ErrTransport):
		return "transport"
	default:
		return "service"
	}
}
