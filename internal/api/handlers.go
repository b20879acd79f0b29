package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/fee"
	"github.com/sells-group/fee-cli/internal/letter"
	"github.com/sells-group/fee-cli/internal/model"
	"github.com/sells-group/fee-cli/internal/resolve"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ResolveRequest is the body of POST /v1/resolve/{entity}. ClientRef,
// SubscriptionCode and FullName apply to fee-row lookups only.
type ResolveRequest struct {
	Query            string `json:"query"`
	ClientRef        string `json:"client_ref,omitempty"`
	SubscriptionCode string `json:"subscription_code,omitempty"`
	FullName         string `json:"full_name,omitempty"`
}

// DatasetInfo describes a loaded reference workbook.
type DatasetInfo struct {
	Source    string    `json:"source"`
	LoadedAt  time.Time `json:"loaded_at"`
	Investors int       `json:"investors"`
	Companies int       `json:"companies"`
	FeeRows   int       `json:"fee_rows"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"dataset": s.datasets.Stats(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}

	res := s.letters.Resolver()
	entity := chi.URLParam(r, "entity")
	switch entity {
	case "investor":
		out := res.Investor(req.Query, ds.Investors)
		s.observe(entity, out.Kind, out.Tier)
		writeJSON(w, http.StatusOK, out)
	case "company":
		out := res.Company(req.Query, ds.Companies)
		s.observe(entity, out.Kind, out.Tier)
		writeJSON(w, http.StatusOK, out)
	case "fee-row":
		name := req.FullName
		if name == "" {
			name = req.Query
		}
		out := res.ResolveFeeRow(ds.FeeRows, req.ClientRef, req.SubscriptionCode, name)
		s.observe("fee_row", out.Kind, out.Tier)
		writeJSON(w, http.StatusOK, out)
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown entity " + entity})
	}
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req letter.QuoteRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := s.letters.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req letter.Request
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Investor) == "" || strings.TrimSpace(req.Company) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "investor and company are required"})
		return
	}
	ds, ok := s.dataset(w, r)
	if !ok {
		return
	}
	p, err := s.letters.Prepare(r.Context(), ds, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ds, err := s.datasets.Refresh(r.Context(), s.cfg.WorkbookPath)
	s.letters.LogRefresh(r.Context(), s.cfg.WorkbookPath, err)
	if err != nil {
		zap.L().Error("api: dataset refresh failed", zap.String("path", s.cfg.WorkbookPath), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "dataset refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, datasetInfo(ds))
}

func (s *Server) dataset(w http.ResponseWriter, r *http.Request) (*model.Dataset, bool) {
	ds, err := s.datasets.Get(r.Context(), s.cfg.WorkbookPath)
	if err != nil {
		zap.L().Error("api: dataset unavailable", zap.String("path", s.cfg.WorkbookPath), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "reference workbook unavailable"})
		return nil, false
	}
	return ds, true
}

func (s *Server) observe(entity string, kind resolve.Kind, tier resolve.Tier) {
	if s.metrics != nil {
		s.metrics.ObserveResolution(entity, kind.String(), tier.String())
	}
}

func datasetInfo(ds *model.Dataset) DatasetInfo {
	inv, co, fr := ds.Counts()
	return DatasetInfo{
		Source:    ds.Source,
		LoadedAt:  ds.LoadedAt,
		Investors: inv,
		Companies: co,
		FeeRows:   fr,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeServiceError maps calculation errors to 422 and everything else to
// 500 without leaking internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var calcErr *fee.CalculationError
	if errors.As(err, &calcErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: calcErr.Error(), Field: calcErr.Field})
		return
	}
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
