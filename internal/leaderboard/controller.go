// Package leaderboard pages through the remote name ranking.
package leaderboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
)

// DefaultPageSize is the number of rows requested per page.
const DefaultPageSize = 10

// ErrPageOutOfRange is returned for a page index outside the known range.
var ErrPageOutOfRange = errors.New("page index out of range")

// Lister fetches one page of the ranking.
type Lister interface {
	ListNames(ctx context.Context, page, size int, sort string) (*models.NamesResponse, error)
}

// Controller holds the currently displayed ranking page.
type Controller struct {
	lister   Lister
	pageSize int

	mu       sync.Mutex
	page     models.Page[models.NameCount]
	err      error
	inFlight int
	seq      uint64
}

// NewController creates a controller. A non-positive pageSize uses DefaultPageSize.
func NewController(lister Lister, pageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		lister:   lister,
		pageSize: pageSize,
		page: models.Page[models.NameCount]{
			Items:      []models.NameCount{},
			TotalPages: 1,
			PageSize:   pageSize,
		},
	}
}

// Load fetches pageIndex and makes it current. Out-of-range indices return
// ErrPageOutOfRange without touching the network. When loads overlap only the
// most recently requested one is applied; an older response is returned to
// its caller but not stored.
func (c *Controller) Load(ctx context.Context, pageIndex int) (models.Page[models.NameCount], error) {
	c.mu.Lock()
	if !c.page.InRange(pageIndex) {
		total := c.page.TotalPages
		c.mu.Unlock()
		slog.Debug("Controller.Load: page out of range", "page", pageIndex, "total_pages", total)
		return models.Page[models.NameCount]{}, ErrPageOutOfRange
	}
	c.seq++
	seq := c.seq
	c.inFlight++
	c.mu.Unlock()

	resp, err := c.lister.ListNames(ctx, pageIndex, c.pageSize, nameapi.SortByCountDesc)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	latest := seq == c.seq

	if err != nil {
		slog.Warn("Controller.Load: failed to load page", "page", pageIndex, "error", err)
		if latest {
			c.err = err
		}
		return c.page, err
	}

	page := pageFromResponse(resp, pageIndex, c.pageSize)
	if !latest {
		slog.Debug("Controller.Load: discarding superseded page", "page", pageIndex)
		return page, nil
	}
	c.page = page
	c.err = nil
	return page, nil
}

// Next loads the page after the current one.
func (c *Controller) Next(ctx context.Context) (models.Page[models.NameCount], error) {
	return c.Load(ctx, c.Current().PageIndex+1)
}

// Prev loads the page before the current one.
func (c *Controller) Prev(ctx context.Context) (models.Page[models.NameCount], error) {
	return c.Load(ctx, c.Current().PageIndex-1)
}

// Current returns the page last applied.
func (c *Controller) Current() models.Page[models.NameCount] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Loading reports whether any load is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// Err returns the error from the latest failed load, cleared on the next success.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// PageSize returns the fixed page size.
func (c *Controller) PageSize() int {
	return c.pageSize
}

func pageFromResponse(resp *models.NamesResponse, pageIndex, pageSize int) models.Page[models.NameCount] {
	page := models.Page[models.NameCount]{
		Items:      []models.NameCount{},
		PageIndex:  pageIndex,
		TotalPages: 1,
		PageSize:   pageSize,
	}
	if resp == nil {
		return page
	}
	if resp.Content != nil {
		page.Items = append(page.Items, resp.Content...)
	}
	if resp.TotalPages > 0 {
		page.TotalPages = resp.TotalPages
	}
	page.TotalElements = resp.TotalElements
	// The server's page number wins over the requested one, kept within range.
	page.PageIndex = min(max(resp.Number, 0), page.TotalPages-1)
	if page.PageIndex != pageIndex {
		slog.Debug("Controller.Load: server returned a different page", "requested", pageIndex, "number", resp.Number, "applied", page.PageIndex)
	}
	return page
}
