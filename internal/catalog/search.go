package catalog

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/pkg/log"
)

// SearchResult is built fresh for every call.
type SearchResult struct {
	Items []CarCard `json:"items"`
	Count int       `json:"count"`
}

func emptyResult() SearchResult {
	return SearchResult{Items: []CarCard{}, Count: 0}
}

// Executor runs trim searches against a Store.
type Executor struct {
	store  Store
	logger *log.Logger
}

func NewExecutor(store Store) *Executor {
	return &Executor{
		store:  store,
		logger: log.Named("catalog"),
	}
}

// Search evaluates the criteria and returns at most criteria.Limit repaired
// records. On store failure it returns an empty result together with an
// Upstream error so callers can decide whether to surface it.
func (e *Executor) Search(ctx context.Context, criteria SearchCriteria) (SearchResult, error) {
	c := criteria.WithDefaults()
	if c.BudgetInverted() {
		return emptyResult(), nil
	}

	rows, err := e.store.QueryTrims(ctx, c.Query())
	if err != nil {
		e.logger.Error("trim query failed: %v", err)
		return emptyResult(), apperr.Wrap(err, apperr.KindUpstream, "trim query failed")
	}

	items := RepairRows(rows)

	if c.HasBudget() {
		filtered := items[:0]
		for _, item := range items {
			if c.InBudget(item) {
				filtered = append(filtered, item)
			}
		}
		items = filtered

		if c.SortBy == SortMSRP {
			sortByEffectivePrice(items, c.SortDir == SortDesc)
		}
	}

	if len(items) > c.Limit {
		items = items[:c.Limit]
	}
	if items == nil {
		items = []CarCard{}
	}
	return SearchResult{Items: items, Count: len(items)}, nil
}

// Get returns one repaired record, or a NotFound error.
func (e *Executor) Get(ctx context.Context, trimID int64) (CarCard, error) {
	row, err := e.store.GetTrim(ctx, trimID)
	if err != nil {
		return CarCard{}, apperr.Wrap(err, apperr.KindUpstream, "trim lookup failed").WithContext("trim_id", trimID)
	}
	if row == nil {
		return CarCard{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("trim %d not found", trimID))
	}
	return RepairRow(*row), nil
}

// sortByEffectivePrice orders by msrp falling back to invoice. Rows without
// a price count as +Inf.
func sortByEffectivePrice(items []CarCard, desc bool) {
	price := func(c CarCard) float64 {
		if p, ok := c.Price(); ok {
			return p
		}
		return math.Inf(1)
	}
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := price(items[i]), price(items[j])
		if desc {
			return pi > pj
		}
		return pi < pj
	})
}
