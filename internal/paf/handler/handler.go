package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"paflow/internal/paf/lifecycle"
	"paflow/internal/paf/models"
	dErrors "paflow/pkg/domain-errors"
	"paflow/pkg/platform/httputil"
	"paflow/pkg/requestcontext"
)

// Service defines the PAF operations the handler needs.
type Service interface {
	Create(ctx context.Context, in lifecycle.CreateInput) (*models.PAF, error)
	Transition(ctx context.Context, pafID int64, edge lifecycle.Edge, payload models.Payload) (*models.PAF, error)
	Get(ctx context.Context, pafID int64) (*models.PAF, error)
	History(ctx context.Context, pafID int64) ([]models.HistoryEntry, error)
	List(ctx context.Context, status models.Status) ([]*models.PAF, error)
}

// Handler serves the PAF endpoints.
type Handler struct {
	logger *slog.Logger
	pafs   Service
}

// New creates a PAF Handler.
func New(pafs Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, pafs: pafs}
}

// Register mounts the PAF routes. The caller's router carries the shared
// middleware chain, including actor authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/pafs", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{pafID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/submit", h.transition(lifecycle.EdgeSubmit, decodeAs[models.SubmitPayload]))
			r.Post("/agent-approve", h.transition(lifecycle.EdgeAgentApprove, decodeAs[models.SignaturePayload]))
			r.Post("/approve", h.transition(lifecycle.EdgeListOwnerApprove, decodeAs[models.SignaturePayload]))
			r.Post("/usps-approve", h.transition(lifecycle.EdgeUSPSApprove, decodeAs[models.ApprovalPayload]))
			r.Post("/licensee-validate", h.transition(lifecycle.EdgeLicenseeValidate, decodeAs[models.ValidationPayload]))
			r.Post("/reject", h.transition(lifecycle.EdgeReject, decodeAs[models.RejectPayload]))
			r.Post("/renew", h.transition(lifecycle.EdgeRenew, decodeAs[models.RenewPayload]))
		})
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in lifecycle.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	created, err := h.pafs.Create(ctx, in)
	if err != nil {
		h.logError(ctx, "create paf failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.Status(r.URL.Query().Get("status"))

	pafs, err := h.pafs.List(ctx, status)
	if err != nil {
		h.logError(ctx, "list pafs failed", err)
		httputil.WriteError(w, err)
		return
	}
	if pafs == nil {
		pafs = []*models.PAF{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pafs": pafs})
}

// detailsResponse is the GET response: the PAF plus its full ledger.
type detailsResponse struct {
	*models.PAF
	History []models.HistoryEntry `json:"history"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pafID, err := pafIDFromRequest(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.pafs.Get(ctx, pafID)
	if err != nil {
		h.logError(ctx, "get paf failed", err)
		httputil.WriteError(w, err)
		return
	}
	history, err := h.pafs.History(ctx, pafID)
	if err != nil {
		h.logError(ctx, "get paf history failed", err)
		httputil.WriteError(w, err)
		return
	}
	if history == nil {
		history = []models.HistoryEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, detailsResponse{PAF: p, History: history})
}

type decoder func(r *http.Request) (models.Payload, error)

// decodeAs decodes the request body into the edge's payload type. An empty
// body decodes to the zero payload; edges that require fields reject it in
// Validate.
func decodeAs[P models.Payload](r *http.Request) (models.Payload, error) {
	var p P
	if r.Body == nil || r.ContentLength == 0 {
		return p, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return p, nil
}

func (h *Handler) transition(edge lifecycle.Edge, decode decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		pafID, err := pafIDFromRequest(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		payload, err := decode(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		updated, err := h.pafs.Transition(ctx, pafID, edge, payload)
		if err != nil {
			h.logError(ctx, "transition failed", err, "edge", string(edge), "paf_id", pafID)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, updated)
	}
}

func pafIDFromRequest(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "pafID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid PAF id")
	}
	return id, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append(args,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx))
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}
