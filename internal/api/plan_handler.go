// File path: internal/api/plan_handler.go
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/careplan"
	"github.com/nicodishanthj/vitaplan/internal/common"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

func statusForKind(kind careplan.Kind) int {
	switch kind {
	case careplan.KindValidation:
		return http.StatusBadRequest
	case careplan.KindRetrievalUnavailable:
		return http.StatusServiceUnavailable
	case careplan.KindGenerationFailed:
		return http.StatusBadGateway
	case careplan.KindTimeout:
		return http.StatusGatewayTimeout
	case careplan.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req planRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.config.PlanTimeout)
	defer cancel()

	tp, err := s.plans.BuildTreatmentPlan(ctx, req)
	if err != nil {
		kind, message := careplan.Describe(err)
		status := statusForKind(kind)
		if status >= http.StatusInternalServerError {
			logger.Error().Str("kind", string(kind)).Err(err).Msg("api: plan request failed")
		} else {
			logger.Warn().Str("kind", string(kind)).Err(err).Msg("api: plan request failed")
		}
		writeJSON(w, status, planError{Kind: kind, Message: message})
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(tp.Markdown()))
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: tp, Markdown: tp.Markdown()})
}

func (s *Server) handleBMI(w http.ResponseWriter, r *http.Request) {
	var req bmiRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeBMI(w, req)
}

func (s *Server) handleBMIQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req bmiRequest
	for name, dst := range map[string]*float64{
		"feet":      &req.HeightFeet,
		"inches":    &req.HeightInches,
		"weight_kg": &req.WeightKG,
	} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid "+name+" parameter"))
			return
		}
		*dst = v
	}
	s.writeBMI(w, req)
}

func (s *Server) writeBMI(w http.ResponseWriter, req bmiRequest) {
	bmi, category, err := s.plans.ComputeBMI(req.HeightFeet, req.HeightInches, req.WeightKG)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, bmiResponse{BMI: bmi, Category: category})
}
