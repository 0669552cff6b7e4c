package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
	"github.com/custodia-labs/subscription-params/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// PartialFailureResponse reports a replacement that stopped part way
// @Description Partial replacement error response
type PartialFailureResponse struct {
	Error   string `json:"error" example:"partial failure"`
	Written int    `json:"written" example:"1"`
	Total   int    `json:"total" example:"3"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Checks the parameter store and the replace lock backend
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  StatusResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.parameterService.Ready(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

// Parameter endpoints

// handleListParameters godoc
// @Summary      List subscription parameters
// @Description  Returns every template parameter recorded for a subscription
// @Tags         Parameters
// @Produce      json
// @Security     BearerAuth
// @Param        subscriptionID  path      string  true  "Subscription ID"
// @Success      200  {array}   domain.SubscriptionTemplateParameter
// @Failure      400  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/parameters [get]
func (s *Server) handleListParameters(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}

	params, err := s.parameterService.ListBySubscription(r.Context(), subID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// handleCreateParameter godoc
// @Summary      Create a parameter
// @Description  Records one template parameter for a subscription
// @Tags         Parameters
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        subscriptionID  path  string                  true  "Subscription ID"
// @Param        request         body  driving.ParameterInput  true  "Parameter"
// @Success      201  {object}  domain.SubscriptionTemplateParameter
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "Parameter name already used"
// @Failure      503  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/parameters [post]
func (s *Server) handleCreateParameter(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}

	var input driving.ParameterInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	param, err := s.parameterService.Create(r.Context(), driving.CreateParameterRequest{
		SubscriptionID: subID,
		ParameterInput: input,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, param)
}

// handleReplaceParameters godoc
// @Summary      Replace subscription parameters
// @Description  Makes the request body the subscription's complete parameter set
// @Tags         Parameters
// @Accept       json
// @Security     BearerAuth
// @Param        subscriptionID  path  string                            true  "Subscription ID"
// @Param        request         body  driving.ReplaceParametersRequest  true  "Parameter set"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse  "Replacement already in progress"
// @Failure      500  {object}  PartialFailureResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/parameters [put]
func (s *Server) handleReplaceParameters(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}

	var req driving.ReplaceParametersRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Parameters == nil {
		writeError(w, http.StatusBadRequest, "parameters is required")
		return
	}

	if err := s.parameterService.Replace(r.Context(), subID, *req.Parameters); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetParameter godoc
// @Summary      Get a parameter
// @Description  Returns one template parameter by name
// @Tags         Parameters
// @Produce      json
// @Security     BearerAuth
// @Param        subscriptionID  path  string  true  "Subscription ID"
// @Param        name            path  string  true  "Parameter name"
// @Success      200  {object}  domain.SubscriptionTemplateParameter
// @Failure      404  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/parameters/{name} [get]
func (s *Server) handleGetParameter(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}

	param, err := s.parameterService.Get(r.Context(), subID, r.PathValue("name"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, param)
}

// handleListPlanParameters godoc
// @Summary      List plan parameters
// @Description  Returns a subscription's parameters recorded under a plan, ordered by name
// @Tags         Parameters
// @Produce      json
// @Security     BearerAuth
// @Param        subscriptionID  path  string  true  "Subscription ID"
// @Param        planID          path  string  true  "Plan ID"
// @Success      200  {array}   domain.SubscriptionTemplateParameter
// @Failure      400  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/plans/{planID}/parameters [get]
func (s *Server) handleListPlanParameters(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}
	planID, ok := pathUUID(w, r, "planID")
	if !ok {
		return
	}

	params, err := s.parameterService.ListByPlan(r.Context(), subID, planID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

// handleExportARMParameters godoc
// @Summary      Export ARM parameters
// @Description  Renders a plan's parameters as an ARM deployment parameter file
// @Tags         Parameters
// @Produce      json
// @Security     BearerAuth
// @Param        subscriptionID  path  string  true  "Subscription ID"
// @Param        planID          path  string  true  "Plan ID"
// @Success      200  {object}  domain.ARMParameterFile
// @Failure      400  {object}  ErrorResponse
// @Router       /subscriptions/{subscriptionID}/plans/{planID}/arm-parameters [get]
func (s *Server) handleExportARMParameters(w http.ResponseWriter, r *http.Request) {
	subID, ok := pathUUID(w, r, "subscriptionID")
	if !ok {
		return
	}
	planID, ok := pathUUID(w, r, "planID")
	if !ok {
		return
	}

	file, err := s.parameterService.ExportARM(r.Context(), subID, planID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// pathUUID parses a path segment as a UUID, writing a 400 on failure
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain error kinds onto HTTP statuses.
// Partial failure is checked first since it also wraps its cause.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var partial *domain.PartialFailureError
	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, PartialFailureResponse{
			Error:   "parameters partially replaced",
			Written: partial.Written,
			Total:   partial.Total,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "parameter not found")
	case errors.Is(err, domain.ErrReplaceInProgress):
		writeError(w, http.StatusConflict, "replacement already in progress")
	case errors.Is(err, domain.ErrConstraintViolation):
		writeError(w, http.StatusConflict, "parameter name already exists")
	case errors.Is(err, domain.ErrStorageUnavailable):
		s.logger.Error("storage unavailable", "caller", callerName(r), "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("request failed", "caller", callerName(r), "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Helper functions

func callerName(r *http.Request) string {
	if c := GetCaller(r.Context()); c != nil {
		return c.Subject
	}
	return ""
}

// decodeBody rejects unknown fields so a misspelled key is not read as absent
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
