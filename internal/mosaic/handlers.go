package mosaic

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

// ProposeReserveRequest is the JSON body for POST /originals/{originalID}/reserve-proposals.
type ProposeReserveRequest struct {
	Proposer string          `json:"proposer"`
	Price    decimal.Decimal `json:"price"`
}

// PlaceBidRequest is the JSON body for POST /originals/{originalID}/bids.
// Deposit is the attached value and must equal the price.
type PlaceBidRequest struct {
	Bidder  string          `json:"bidder"`
	Price   decimal.Decimal `json:"price"`
	Deposit decimal.Decimal `json:"deposit"`
}

// RespondRequest is the JSON body for POST /originals/{originalID}/responses.
type RespondRequest struct {
	Responder string `json:"responder"`
	Response  string `json:"response"` // "yes" or "no"
}

// PresetRequest is the JSON body for POST /monos/{mosaicID}/preset.
type PresetRequest struct {
	Caller   string `json:"caller"`
	PresetID int64  `json:"preset_id"`
}

// CallerRequest carries just the acting account.
type CallerRequest struct {
	Caller string `json:"caller"`
}

// --- HTTP handlers ---

// HandleGetOriginal handles GET /api/v1/originals/{originalID}.
func (r *Registry) HandleGetOriginal(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	o, err := r.GetOriginal(req.Context(), originalID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// HandleLatestOriginal handles GET /api/v1/originals/latest.
func (r *Registry) HandleLatestOriginal(w http.ResponseWriter, req *http.Request) {
	id, err := r.LatestOriginalID(req.Context())
	if err != nil {
		writeError(w, "failed to read latest original id", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"latest_original_id": id})
}

// HandleGetMono handles GET /api/v1/monos/{mosaicID}.
func (r *Registry) HandleGetMono(w http.ResponseWriter, req *http.Request) {
	mosaicID, ok := pathID(w, req, "mosaicID")
	if !ok {
		return
	}

	m, err := r.GetMono(req.Context(), mosaicID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleSetPreset handles POST /api/v1/monos/{mosaicID}/preset.
func (r *Registry) HandleSetPreset(w http.ResponseWriter, req *http.Request) {
	mosaicID, ok := pathID(w, req, "mosaicID")
	if !ok {
		return
	}

	var body PresetRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	if err := r.SetPresetID(req.Context(), mosaicID, body.Caller, body.PresetID); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"preset_id": body.PresetID})
}

// HandleProposeReserve handles POST /api/v1/originals/{originalID}/reserve-proposals.
func (r *Registry) HandleProposeReserve(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	var body ProposeReserveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Proposer == "" {
		writeError(w, "proposer is required", http.StatusBadRequest)
		return
	}

	updated, err := r.ProposeReservePriceBatch(req.Context(), originalID, body.Proposer, body.Price)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"monos_updated": updated})
}

// HandleProposalStats handles GET /api/v1/originals/{originalID}/reserve-proposals.
func (r *Registry) HandleProposalStats(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	stats, err := r.SumReserveProposals(req.Context(), originalID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandlePlaceBid handles POST /api/v1/originals/{originalID}/bids.
func (r *Registry) HandlePlaceBid(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	var body PlaceBidRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Bidder == "" {
		writeError(w, "bidder is required", http.StatusBadRequest)
		return
	}

	b, err := r.PlaceBid(req.Context(), originalID, body.Bidder, body.Price, body.Deposit)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// HandleRespond handles POST /api/v1/originals/{originalID}/responses.
func (r *Registry) HandleRespond(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	var body RespondRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Responder == "" {
		writeError(w, "responder is required", http.StatusBadRequest)
		return
	}

	weight, err := r.RespondToBidBatch(req.Context(), originalID, body.Responder, responseFromString(body.Response))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"weight": weight})
}

// HandleAcceptable handles GET /api/v1/originals/{originalID}/acceptable.
func (r *Registry) HandleAcceptable(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	standing, err := r.IsBidAcceptable(req.Context(), originalID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standing)
}

// HandleGetBid handles GET /api/v1/bids/{bidID}.
func (r *Registry) HandleGetBid(w http.ResponseWriter, req *http.Request) {
	bidID, ok := pathID(w, req, "bidID")
	if !ok {
		return
	}

	b, err := r.GetBid(req.Context(), bidID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleFinalizeBid handles POST /api/v1/bids/{bidID}/finalize.
func (r *Registry) HandleFinalizeBid(w http.ResponseWriter, req *http.Request) {
	bidID, ok := pathID(w, req, "bidID")
	if !ok {
		return
	}

	b, err := r.FinalizeProposedBid(req.Context(), bidID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleSettleBid handles POST /api/v1/bids/{bidID}/settle.
func (r *Registry) HandleSettleBid(w http.ResponseWriter, req *http.Request) {
	bidID, ok := pathID(w, req, "bidID")
	if !ok {
		return
	}

	result, err := r.FinalizeAcceptedBid(req.Context(), bidID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRefundBid handles POST /api/v1/bids/{bidID}/refund.
func (r *Registry) HandleRefundBid(w http.ResponseWriter, req *http.Request) {
	bidID, ok := pathID(w, req, "bidID")
	if !ok {
		return
	}

	var body CallerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	amount, err := r.RefundBidDeposit(req.Context(), bidID, body.Caller)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refund": amount.String()})
}

// HandleRedeem handles POST /api/v1/originals/{originalID}/redeem.
func (r *Registry) HandleRedeem(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	var body CallerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	result, err := r.RefundOnSold(req.Context(), originalID, body.Caller)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleDistribution handles GET /api/v1/originals/{originalID}/distribution.
func (r *Registry) HandleDistribution(w http.ResponseWriter, req *http.Request) {
	originalID, ok := pathID(w, req, "originalID")
	if !ok {
		return
	}

	status, err := r.DistributionStatus(req.Context(), originalID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	o, err := r.GetOriginal(req.Context(), originalID)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":               string(status),
		"per_mono_resale_fund": o.PerMonoResaleFund.String(),
	})
}

// --- helpers ---

func responseFromString(s string) model.BidResponse {
	switch s {
	case "yes":
		return model.ResponseYes
	case "no":
		return model.ResponseNo
	default:
		return model.ResponseNone
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeRegistryError maps registry sentinels to HTTP status codes.
func writeRegistryError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, ErrInvalidOriginal),
		errors.Is(err, ErrInvalidMosaic),
		errors.Is(err, ErrInvalidBid):
		status = http.StatusNotFound
	case errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrWrongDeposit),
		errors.Is(err, ErrInvalidResponse):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotOwner):
		status = http.StatusForbidden
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
