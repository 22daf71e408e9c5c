package group

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mosaicfund/mosaic-engine/internal/model"
)

// --- Request/Response types ---

// CreateRequest is the JSON body for POST /groups.
type CreateRequest struct {
	Creator        string          `json:"creator"`
	TargetAssetID  int64           `json:"target_asset_id"`
	TargetMaxPrice decimal.Decimal `json:"target_max_price"`
	MetadataURI    string          `json:"metadata_uri"`
}

// ContributeRequest is the JSON body for POST /groups/{groupID}/contribute.
// Payment is the attached value and must equal quantity * unit ticket price.
type ContributeRequest struct {
	Contributor    string          `json:"contributor"`
	TicketQuantity int64           `json:"ticket_quantity"`
	Payment        decimal.Decimal `json:"payment"`
}

// CallerRequest carries just the acting account for buy/claim/refund calls.
type CallerRequest struct {
	Caller string `json:"caller"`
}

// RefundResponse is returned from POST /groups/{groupID}/refund.
type RefundResponse struct {
	Refund decimal.Decimal `json:"refund"`
}

// --- HTTP handlers ---

// HandleCreate handles POST /api/v1/groups.
func (s *Service) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Creator == "" {
		writeError(w, "creator is required", http.StatusBadRequest)
		return
	}

	g, err := s.Create(r.Context(), req.Creator, req.TargetAssetID, req.TargetMaxPrice, req.MetadataURI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// HandleList handles GET /api/v1/groups.
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	groups, err := s.List(r.Context())
	if err != nil {
		writeError(w, "failed to list groups", http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleGet handles GET /api/v1/groups/{groupID}.
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	g, err := s.Get(r.Context(), groupID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleLifecycle handles GET /api/v1/groups/{groupID}/lifecycle.
func (s *Service) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	lc, err := s.Lifecycle(r.Context(), groupID)
	if err != nil {
		writeError(w, "failed to derive lifecycle", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lifecycle": int(lc),
		"name":      lc.String(),
	})
}

// HandleTicketBalance handles GET /api/v1/groups/{groupID}/tickets/{holder}.
func (s *Service) HandleTicketBalance(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	holder := chi.URLParam(r, "holder")

	count, err := s.TicketBalance(r.Context(), groupID, holder)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"tickets": count})
}

// HandleContribute handles POST /api/v1/groups/{groupID}/contribute.
func (s *Service) HandleContribute(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Contributor == "" {
		writeError(w, "contributor is required", http.StatusBadRequest)
		return
	}

	g, err := s.Contribute(r.Context(), groupID, req.Contributor, req.TicketQuantity, req.Payment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleBuy handles POST /api/v1/groups/{groupID}/buy.
func (s *Service) HandleBuy(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	g, err := s.Buy(r.Context(), groupID, req.Caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleClaim handles POST /api/v1/groups/{groupID}/claim.
func (s *Service) HandleClaim(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	result, err := s.Claim(r.Context(), groupID, req.Caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRefundExpired handles POST /api/v1/groups/{groupID}/refund.
func (s *Service) HandleRefundExpired(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req CallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	refund, err := s.RefundExpired(r.Context(), groupID, req.Caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefundResponse{Refund: refund})
}

// --- helpers ---

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeServiceError maps service sentinels to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, ErrInvalidGroup):
		status = http.StatusNotFound
	case errors.Is(err, ErrZeroTargetPrice),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrWrongPayment):
		status = http.StatusBadRequest
	}
	writeError(w, err.Error(), status)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
