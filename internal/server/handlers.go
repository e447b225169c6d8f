package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/rangeset"
)

var errBadParam = errors.New("invalid query parameter")

type errorResponse struct {
	Error string `json:"error"`
}

type batchRequest struct {
	Ranges []service.Range `json:"ranges"`
}

type batchResponse struct {
	Results []service.RangeResult `json:"results"`
}

type gapsResponse struct {
	Start int64                 `json:"start"`
	End   int64                 `json:"end"`
	Gaps  []rangeset.Gap[int64] `json:"gaps"`
}

func (s *Server) handleRange(rw http.ResponseWriter, hr *http.Request) {
	start, end, err := parseBounds(hr)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	res, err := s.svc.Range(hr.Context(), start, end)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, res)
}

func (s *Server) handleGaps(rw http.ResponseWriter, hr *http.Request) {
	start, end, err := parseBounds(hr)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	gaps, err := s.svc.Gaps(start, end)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, gapsResponse{Start: start, End: end, Gaps: gaps})
}

func (s *Server) handleStats(rw http.ResponseWriter, hr *http.Request) {
	s.writeJSON(hr.Context(), rw, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleBatch(rw http.ResponseWriter, hr *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(rw, hr.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(hr.Context(), rw, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})

		return
	}

	err = s.batch.validate(body)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	var req batchRequest

	err = json.Unmarshal(body, &req)
	if err != nil {
		s.writeError(hr.Context(), rw, fmt.Errorf("%w: %w", ErrInvalidBatch, err))

		return
	}

	results, err := s.svc.Batch(hr.Context(), req.Ranges)
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) handleSnapshotSave(rw http.ResponseWriter, hr *http.Request) {
	manifest, err := s.svc.SaveSnapshot()
	if err != nil {
		s.writeError(hr.Context(), rw, err)

		return
	}

	s.writeJSON(hr.Context(), rw, http.StatusOK, manifest)
}

func (s *Server) handleClear(rw http.ResponseWriter, _ *http.Request) {
	s.svc.Clear()
	rw.WriteHeader(http.StatusNoContent)
}

func parseBounds(hr *http.Request) (start, end int64, err error) {
	start, err = parseParam(hr, "start")
	if err != nil {
		return 0, 0, err
	}

	end, err = parseParam(hr, "end")
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

func parseParam(hr *http.Request, name string) (int64, error) {
	raw := hr.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadParam, name)
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errBadParam, name, err)
	}

	return v, nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, ErrInvalidBatch),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrSpanTooLarge),
		errors.Is(err, service.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNoSnapshotDir):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(ctx context.Context, rw http.ResponseWriter, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.WarnContext(ctx, "request failed", "status", code, "error", err)
	}

	s.writeJSON(ctx, rw, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(ctx context.Context, rw http.ResponseWriter, code int, value any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	encodeErr := json.NewEncoder(rw).Encode(value)
	if encodeErr != nil {
		s.logger.ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}
