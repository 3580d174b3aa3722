// File path: internal/api/reference_handler.go
package api

import (
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/vitaplan/internal/profile"
)

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"regions": s.table.Regions(),
		"default": s.table.DefaultRegion(),
	})
}

// handleRegionGuide serves the regional food entry filtered for a diet. Unknown
// regions resolve to the national default and are flagged as substituted.
func (s *Server) handleRegionGuide(w http.ResponseWriter, r *http.Request) {
	region := chi.URLParam(r, "region")
	diet := profile.DietNonVegetarian
	if raw := strings.TrimSpace(r.URL.Query().Get("diet")); raw != "" {
		parsed, err := profile.ParseDiet(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		diet = parsed
	}
	food, substituted := s.table.Resolve(region)
	guide := guideResponse{
		Region:      food.Name,
		Substituted: substituted,
		Diet:        string(diet),
		Staples:     food.Staples,
		Dishes:      food.TypicalDishes,
		Proteins:    s.table.ProteinsFor(food, diet),
		Vegetables:  food.Vegetables,
		Avoid:       food.Avoid,
		Advice:      food.Recommendation(diet),
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(guide.Markdown()))
		return
	}
	writeJSON(w, http.StatusOK, guide)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, costsResponse{Costs: s.table.Costs()})
}
