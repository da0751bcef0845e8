package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/canopy-network/liquidityx/pkg/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error    string `json:"error"`
	Status   string `json:"status,omitempty"`
	ChargeID int64  `json:"chargeId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusOf maps settlement errors onto HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, accounting.ErrDuplicateSettlement):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, accounting.ErrSubmissionFailed):
		if se, ok := submission.AsError(err); ok && se.Fatal() {
			return http.StatusBadGateway, "submission_failed"
		}
		return http.StatusServiceUnavailable, "pending"
	case errors.Is(err, accounting.ErrValidation),
		errors.Is(err, accounting.ErrInsufficientInput),
		errors.Is(err, accounting.ErrTrustlineMissing),
		errors.Is(err, accounting.ErrOverWithdrawal):
		return http.StatusBadRequest, ""
	case errors.Is(err, accounting.ErrNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, accounting.ErrSequenceConflict),
		errors.Is(err, accounting.ErrPoolUnavailable),
		ledger.IsTransient(err):
		return http.StatusServiceUnavailable, ""
	}
	return http.StatusInternalServerError, ""
}

// writeError maps err and, for post-persist failures, names the charge that needs attention.
func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error, chargeID int64) {
	status, label := statusOf(err)
	body := errorResponse{Error: err.Error(), Status: label, ChargeID: chargeID}
	if status == http.StatusInternalServerError {
		c.App.Logger.Error("request failed", zap.String("route", r.Method+" "+r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
