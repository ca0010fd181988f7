package handler

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"natours/internal/apperr"
	"natours/internal/model"
	"natours/internal/query"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
)

// statsMinRating is the ratingsAverage a tour needs to count in TourStats.
const statsMinRating = 4.5

type difficultyStats struct {
	Difficulty string  `json:"_id"`
	NumTours   int64   `json:"numTours"`
	NumRatings int64   `json:"numRatings"`
	AvgRating  float64 `json:"avgRating"`
	AvgPrice   float64 `json:"avgPrice"`
	MinPrice   float64 `json:"minPrice"`
	MaxPrice   float64 `json:"maxPrice"`

	ratingSum float64
	priceSum  float64
}

// TourStats groups the tours rated statsMinRating or better by upper-cased
// difficulty, cheapest average price first.
func TourStats(st store.Store, tours *model.Model) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		docs, err := st.Collection(tours).Find(r.Context(), query.Intent{
			Filter: query.Filter{"ratingsAverage": {query.Gte(statsMinRating)}},
			Projection: query.Projection{Include: []string{
				"difficulty", "ratingsAverage", "ratingsQuantity", "price",
			}},
		})
		if err != nil {
			return err
		}

		groups := map[string]*difficultyStats{}
		for _, d := range docs {
			key := strings.ToUpper(stringField(d, "difficulty"))
			g, ok := groups[key]
			if !ok {
				g = &difficultyStats{Difficulty: key, MinPrice: math.Inf(1), MaxPrice: math.Inf(-1)}
				groups[key] = g
			}
			price, _ := number(d["price"])
			rating, _ := number(d["ratingsAverage"])
			quantity, _ := number(d["ratingsQuantity"])

			g.NumTours++
			g.NumRatings += int64(quantity)
			g.ratingSum += rating
			g.priceSum += price
			g.MinPrice = math.Min(g.MinPrice, price)
			g.MaxPrice = math.Max(g.MaxPrice, price)
		}

		stats := make([]*difficultyStats, 0, len(groups))
		for _, g := range groups {
			g.AvgRating = g.ratingSum / float64(g.NumTours)
			g.AvgPrice = g.priceSum / float64(g.NumTours)
			stats = append(stats, g)
		}
		sort.Slice(stats, func(i, j int) bool {
			if stats[i].AvgPrice != stats[j].AvgPrice {
				return stats[i].AvgPrice < stats[j].AvgPrice
			}
			return stats[i].Difficulty < stats[j].Difficulty
		})
		return writeJSON(w, http.StatusOK, success(envelope{"stats": stats}))
	}
}

type monthPlan struct {
	Month         int      `json:"month"`
	NumTourStarts int      `json:"numTourStarts"`
	Tours         []string `json:"tours"`
}

// MonthlyPlan counts the tour starts in each month of the {year} route
// parameter, busiest month first.
func MonthlyPlan(st store.Store, tours *model.Model) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		raw := chi.URLParam(r, "year")
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1 || year > 9999 {
			return apperr.BadRequest(fmt.Sprintf("Invalid year: %s", raw))
		}
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)

		docs, err := st.Collection(tours).Find(r.Context(), query.Intent{
			Sort:       query.Sort{{Field: "name"}},
			Projection: query.Projection{Include: []string{"name", "startDates"}},
		})
		if err != nil {
			return err
		}

		months := map[int]*monthPlan{}
		for _, d := range docs {
			starts, _ := d["startDates"].([]any)
			for _, s := range starts {
				at, ok := asTime(s)
				if !ok || at.Before(from) || !at.Before(to) {
					continue
				}
				m := int(at.Month())
				p, ok := months[m]
				if !ok {
					p = &monthPlan{Month: m}
					months[m] = p
				}
				p.NumTourStarts++
				p.Tours = append(p.Tours, stringField(d, "name"))
			}
		}

		plan := make([]*monthPlan, 0, len(months))
		for _, p := range months {
			plan = append(plan, p)
		}
		sort.Slice(plan, func(i, j int) bool {
			if plan[i].NumTourStarts != plan[j].NumTourStarts {
				return plan[i].NumTourStarts > plan[j].NumTourStarts
			}
			return plan[i].Month < plan[j].Month
		})
		return writeJSON(w, http.StatusOK, success(envelope{"plan": plan}))
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		return t.UTC(), err == nil
	}
	return time.Time{}, false
}
