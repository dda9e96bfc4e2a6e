package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tonbeats/tonbeats/internal/model"
	"github.com/tonbeats/tonbeats/internal/server/middleware"
	"github.com/tonbeats/tonbeats/internal/service"
	"github.com/tonbeats/tonbeats/internal/storage"
	"github.com/tonbeats/tonbeats/internal/tonx"
)

// ListenHandler serves listen recording and the read side of the counters.
type ListenHandler struct {
	detector *service.Detector
	ledger   *service.Ledger
	logger   *slog.Logger
}

// NewListenHandler wires the listen endpoints.
func NewListenHandler(detector *service.Detector, ledger *service.Ledger, logger *slog.Logger) *ListenHandler {
	return &ListenHandler{detector: detector, ledger: ledger, logger: logger}
}

// recordRequest is the body of a listen-record call. The timestamp is
// client-supplied and recorded as-is in the per-user counter.
type recordRequest struct {
	NFTAddress        string `json:"nft_address"`
	CollectionAddress string `json:"collection_address,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// Record runs the detector and, when clean, performs the transactional
// ledger update. Suspicious verdicts and the 30-second floor both surface as
// 429: the caller is told "too many requests" without a durable block.
// POST /api/v1/listen
func (h *ListenHandler) Record(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req recordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	nftAddr, err := tonx.Normalize(req.NFTAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid nft address")
		return
	}

	verdict := h.detector.Evaluate(r.Context(), principal.Address, nftAddr)
	if verdict.Suspicious {
		h.logger.Warn("listen rejected as suspicious",
			"user", principal.Address, "nft", nftAddr, "reason", verdict.Reason)
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	clientTS := time.Unix(req.Timestamp, 0)
	if req.Timestamp == 0 {
		clientTS = time.Now()
	}

	count, err := h.ledger.RecordSessionListen(r.Context(), principal.Address, nftAddr, req.CollectionAddress, clientTS)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrListenTooSoon):
			writeError(w, http.StatusTooManyRequests, "Listen recorded too recently")
		case errors.Is(err, tonx.ErrInvalidAddress):
			writeError(w, http.StatusBadRequest, "Invalid address")
		default:
			h.logger.Error("listen record failed", "user", principal.Address, "nft", nftAddr, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to record listen")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.ListenResponse{
		NFTAddress:  nftAddr,
		ListenCount: count,
	})
}

// NFTStats returns the aggregate play counter for one track.
// GET /api/v1/nft/{address}/listens
func (h *ListenHandler) NFTStats(w http.ResponseWriter, r *http.Request) {
	row, err := h.ledger.NFTListens(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		if errors.Is(err, tonx.ErrInvalidAddress) {
			writeError(w, http.StatusBadRequest, "Invalid nft address")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "No listens recorded")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Top returns the most played tracks.
// GET /api/v1/listens/top
func (h *ListenHandler) Top(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.TopNFTListens(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resource": rows})
}
