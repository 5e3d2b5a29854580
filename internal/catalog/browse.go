package catalog

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 50

	randomImagePool = 1000
)

// Car is the one-per-model listing shape of the browse API.
type Car struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Year       int      `json:"year"`
	Type       *string  `json:"type,omitempty"`
	Seats      *int     `json:"seats,omitempty"`
	MPGCity    *float64 `json:"mpgCity,omitempty"`
	MPGHighway *float64 `json:"mpgHighway,omitempty"`
	MSRP       *int     `json:"msrp,omitempty"`
	Drive      *string  `json:"drive,omitempty"`
	Powertrain *string  `json:"powertrain,omitempty"`
	Image      *string  `json:"image,omitempty"`
}

type BrowseParams struct {
	Q         string
	Type      string
	Seats     string
	Sort      string
	BudgetMin *float64
	BudgetMax *float64
	Page      int
	PageSize  int
}

type BrowsePage struct {
	Items      []Car `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	Total      int   `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// Browse lists the cheapest trim of every year/make/model, sorted and paged.
func (e *Executor) Browse(ctx context.Context, p BrowseParams) (BrowsePage, error) {
	q := TrimQuery{
		Text:    strings.TrimSpace(p.Q),
		MSRPMin: p.BudgetMin,
		MSRPMax: p.BudgetMax,
	}
	if t := strings.TrimSpace(p.Type); t != "" && !strings.EqualFold(t, "all") {
		q.BodyType = t
	}
	switch seats := strings.TrimSpace(p.Seats); seats {
	case "", "any":
	case "7+", "7plus":
		q.SeatsMin = ptr(7)
	default:
		if n, err := strconv.Atoi(seats); err == nil {
			q.Seats = &n
		}
	}

	rows, err := e.store.QueryTrims(ctx, q)
	if err != nil {
		e.logger.Error("browse query failed: %v", err)
		return BrowsePage{}, apperr.Wrap(err, apperr.KindUpstream, "Unable to fetch cars.")
	}

	unique := cheapestPerModel(RepairRows(rows))
	sortListing(unique, p.Sort)

	pageSize := clamp(p.PageSize, 1, MaxPageSize, DefaultPageSize)
	total := len(unique)
	totalPages := 1
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	page := clamp(p.Page, 1, totalPages, 1)

	from := (page - 1) * pageSize
	to := min(from+pageSize, total)
	items := make([]Car, 0, pageSize)
	if from < total {
		for _, row := range unique[from:to] {
			items = append(items, toCar(row))
		}
	}

	return BrowsePage{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// RandomImage picks one catalog image url. It returns nil when there is none.
func (e *Executor) RandomImage(ctx context.Context) (*string, error) {
	rows, err := e.store.QueryTrims(ctx, TrimQuery{HasImage: true, Limit: randomImagePool})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "image query failed")
	}
	images := make([]string, 0, len(rows))
	for _, row := range rows {
		if u := deref(row.ImageURL); u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		return nil, nil
	}
	pick := images[rand.IntN(len(images))]
	return &pick, nil
}

func clamp(v, lo, hi, fallback int) int {
	if v == 0 {
		v = fallback
	}
	return max(lo, min(v, hi))
}

func modelKey(c CarCard) string {
	model := strings.ToLower(deref(c.Model))
	if model == "" {
		model = strings.ToLower(deref(c.Submodel))
	}
	if model == "" {
		model = strings.ToLower(deref(c.Description))
	}
	if model == "" {
		model = strconv.FormatInt(c.TrimID, 10)
	}
	year := ""
	if c.ModelYear != nil {
		year = strconv.Itoa(*c.ModelYear)
	}
	return fmt.Sprintf("%s|%s|%s", year, strings.ToLower(deref(c.Make)), model)
}

func msrpOrInf(c CarCard) float64 {
	if c.MSRP != nil {
		return *c.MSRP
	}
	return math.Inf(1)
}

func cheapestPerModel(rows []CarCard) []CarCard {
	best := make(map[string]int)
	out := make([]CarCard, 0, len(rows))
	for _, row := range rows {
		key := modelKey(row)
		idx, ok := best[key]
		if !ok {
			best[key] = len(out)
			out = append(out, row)
			continue
		}
		if msrpOrInf(row) < msrpOrInf(out[idx]) {
			out[idx] = row
		}
	}
	return out
}

func mpgScore(c CarCard) float64 {
	for _, v := range []*float64{c.HighwayMPG, c.CityMPG, c.CombinedMPG} {
		if v != nil {
			return *v
		}
	}
	return math.Inf(-1)
}

func sortListing(rows []CarCard, mode string) {
	coll := collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics)
	byName := func(a, b CarCard) int {
		return coll.CompareString(a.Name(), b.Name())
	}
	byPrice := func(a, b CarCard) int {
		switch {
		case a.MSRP == nil && b.MSRP == nil:
			return byName(a, b)
		case a.MSRP == nil:
			return 1
		case b.MSRP == nil:
			return -1
		case *a.MSRP == *b.MSRP:
			return byName(a, b)
		case *a.MSRP < *b.MSRP:
			return -1
		default:
			return 1
		}
	}

	var less func(i, j int) bool
	switch mode {
	case "price-high":
		less = func(i, j int) bool { return byPrice(rows[j], rows[i]) < 0 }
	case "mpg":
		less = func(i, j int) bool {
			si, sj := mpgScore(rows[i]), mpgScore(rows[j])
			if si != sj {
				return si > sj
			}
			return byName(rows[i], rows[j]) < 0
		}
	case "name":
		less = func(i, j int) bool { return byName(rows[i], rows[j]) < 0 }
	default:
		less = func(i, j int) bool { return byPrice(rows[i], rows[j]) < 0 }
	}
	sort.SliceStable(rows, less)
}

func toCar(c CarCard) Car {
	car := Car{
		ID:         strconv.FormatInt(c.TrimID, 10),
		Name:       c.Name(),
		Year:       time.Now().Year(),
		Type:       c.BodyType,
		Seats:      c.BodySeats,
		MPGCity:    c.CityMPG,
		MPGHighway: c.HighwayMPG,
		Drive:      c.DriveType,
		Powertrain: c.EngineType,
		Image:      c.ImageURL,
	}
	if c.ModelYear != nil {
		car.Year = *c.ModelYear
	}
	if car.Powertrain == nil {
		car.Powertrain = c.FuelType
	}
	if c.MSRP != nil {
		car.MSRP = ptr(int(math.Round(*c.MSRP)))
	}
	return car
}
