// internal/api/handler.go

// Package api exposes the search orchestrator over HTTP. The handler owns
// the wire concerns only: body shape checking, identity headers, status code
// mapping. Everything behavioral lives in the orchestrator.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "carsearch/internal/common/errors"
	"carsearch/internal/common/logger"
	"carsearch/internal/models"
	"carsearch/internal/search/orchestrator"

	"github.com/xeipuuv/gojsonschema"
)

const (
	headerUserID   = "X-User-ID"
	headerUserTier = "X-User-Tier"

	maxBodyBytes = 64 << 10
)

// requestSchema gates the request body shape before any field is read.
// Range and enum rules belong to the criteria validator; this only rejects
// bodies the decoder could misread.
const requestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["criteria"],
	"properties": {
		"criteria": {
			"type": "object",
			"properties": {
				"brand": {"type": "string"},
				"model": {"type": "string"},
				"minPrice": {"type": "number"},
				"maxPrice": {"type": "number"},
				"fuel": {"type": "string"},
				"minYear": {"type": "integer"},
				"maxYear": {"type": "integer"},
				"maxMileage": {"type": "integer"},
				"gearbox": {"type": "string"},
				"seller": {"type": "string"},
				"bodyType": {"type": "string"},
				"location": {
					"type": "object",
					"required": ["zipCode"],
					"properties": {
						"zipCode": {"type": "string"},
						"radiusKm": {"type": "integer"}
					}
				}
			}
		},
		"clientProfile": {"type": "object"},
		"requestEnrichment": {"type": "boolean"}
	}
}`

// SearchHandler serves POST /api/v1/search.
type SearchHandler struct {
	orchestrator *orchestrator.Orchestrator
	schema       *gojsonschema.Schema
	logger       logger.Logger
}

func NewSearchHandler(o *orchestrator.Orchestrator, log logger.Logger) (*SearchHandler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &SearchHandler{
		orchestrator: o,
		schema:       schema,
		logger:       log.WithFields(map[string]interface{}{"component": "api"}),
	}, nil
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "only POST is supported")
		return
	}

	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "MISSING_IDENTITY", headerUserID+" header is required")
		return
	}
	identity := models.Identity{
		UserID: userID,
		Tier:   strings.TrimSpace(r.Header.Get(headerUserTier)),
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNREADABLE_BODY", err.Error())
		return
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_JSON", err.Error())
		return
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", strings.Join(issues, "; "))
		return
	}

	var req models.SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_JSON", err.Error())
		return
	}

	response, stdErr := h.orchestrator.Run(r.Context(), identity, req)
	if stdErr != nil {
		h.writeStandardError(w, stdErr)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *SearchHandler) writeStandardError(w http.ResponseWriter, stdErr *apperrors.StandardError) {
	status := statusFor(stdErr.Code)
	if stdErr.Code == apperrors.ErrCodeRateLimited {
		if retryAfter := apperrors.RetryAfter(stdErr); retryAfter > 0 {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
		}
	}
	fields := map[string]interface{}{
		"code":     string(stdErr.Code),
		"category": apperrors.GetErrorCategory(stdErr.Code),
		"details":  stdErr.Details,
	}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("run failed", fields)
	case apperrors.IsGatingError(stdErr.Code):
		// Gate denials are routine traffic shaping, not failures.
		h.logger.Info("run denied at the gate", fields)
	default:
		h.logger.Warn("run failed", fields)
	}
	writeJSON(w, status, map[string]interface{}{"error": stdErr})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeSearchQuotaExhausted, apperrors.ErrCodeAnalysisQuotaExhausted:
		return http.StatusForbidden
	case apperrors.ErrCodeAllSourcesFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "details": details},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
