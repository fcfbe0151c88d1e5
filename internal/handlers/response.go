package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/logging"
)

type successEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondSuccess(ctx context.Context, w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	respondJSON(ctx, w, status, successEnvelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// respondError renders err as a failure envelope. Errors that are not
// *apierror.Error are logged and reported as a generic 500.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		logging.FromContext(ctx).Error("unhandled error", "error", err)
		apiErr = &apierror.Error{Kind: apierror.KindUpstream, Message: "Internal server error"}
	} else if apiErr.Err != nil {
		logging.FromContext(ctx).Warn("request error cause", "kind", apiErr.Kind, "error", apiErr.Err)
	}

	details := apiErr.Details
	if details == nil {
		details = []string{}
	}
	status := apiErr.Status()
	respondJSON(ctx, w, status, errorEnvelope{StatusCode: status, Message: apiErr.Message, Success: false, Errors: details})
}
