package accounts

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

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
	r.Post("/accounts", h.Create)
	r.Get("/accounts", h.List)
	r.Get("/accounts/trial-balance", h.TrialBalance)
	r.Get("/accounts/{code}", h.Get)
	r.Patch("/accounts/{code}", h.Update)
	r.Post("/accounts/{code}/deactivate", h.Deactivate)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		h.logger.Warn("create account failed", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	if t := r.URL.Query().Get("type"); t != "" {
		list, err := h.service.ListByType(r.Context(), userID, AccountType(t))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, list)
		return
	}
	list, err := h.service.List(r.Context(), userID)
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
	account, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	var req UpdateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "code"), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), userID, chi.URLParam(r, "code")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
