package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tallybook/tallybook/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/plans", h.Create)
	r.Get("/plans", h.ListPending)
	r.Get("/plans/{id}", h.Get)
	r.Post("/plans/{id}/confirm", h.Confirm)
	r.Post("/plans/{id}/reject", h.Reject)
}

type createPlanRequest struct {
	AccountsToCreate []AccountSpec   `json:"accounts_to_create" validate:"required,min=1,dive"`
	Transaction      TransactionSpec `json:"transaction_to_create" validate:"required"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	var req createPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plan, err := h.service.Create(r.Context(), userID, req.AccountsToCreate, req.Transaction)
	if err != nil {
		h.logger.Warn("create plan failed", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListPending(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := planID(w, r)
	if !ok {
		return
	}
	plan, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := planID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Confirm(r.Context(), userID, id)
	if err != nil {
		h.logger.Warn("confirm plan failed", slog.String("plan_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := planID(w, r)
	if !ok {
		return
	}
	if err := h.service.Reject(r.Context(), userID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func planID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Identifier", "plan id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
