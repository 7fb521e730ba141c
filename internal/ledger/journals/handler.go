package journals

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

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
	r.Post("/journal-entries", h.Create)
	r.Post("/journal-entries/validate", h.Validate)
	r.Get("/journal-entries", h.List)
	r.Get("/journal-entries/{id}", h.Get)
	r.Patch("/journal-entries/{id}", h.Update)
	r.Post("/journal-entries/{id}/post", h.Post)
	r.Post("/journal-entries/{id}/reverse", h.Reverse)
	r.Get("/accounts/{code}/activity", h.AccountActivity)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	var in CreateEntryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		h.logger.Warn("create entry failed", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	var in CreateEntryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.Validate(r.Context(), userID, in))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lq := listQuery(r)
	switch {
	case q.Get("reference") != "":
		entries, err := h.service.ListByReference(r.Context(), userID, q.Get("reference"), lq)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	case q.Get("from") != "" || q.Get("to") != "":
		from, err := time.Parse("2006-01-02", q.Get("from"))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Date Range", "from must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", q.Get("to"))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Date Range", "to must be YYYY-MM-DD")
			return
		}
		entries, err := h.service.ListInDateRange(r.Context(), userID, DateRangeQuery{
			From: from, To: to, Limit: lq.Limit, Offset: lq.Offset,
		})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	default:
		entries, err := h.service.List(r.Context(), userID, lq)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var in UpdateEntryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Update(r.Context(), userID, id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Post(r.Context(), userID, id)
	if err != nil {
		h.logger.Warn("post entry failed", slog.String("entry_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	// Reason is optional; an empty body is fine.
	if err := httpx.DecodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}
	result, err := h.service.Reverse(r.Context(), userID, id, body.Reason)
	if err != nil {
		h.logger.Warn("reverse entry failed", slog.String("entry_id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) AccountActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.OwnerID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.AccountActivity(r.Context(), userID, chi.URLParam(r, "code"), listQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func entryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Identifier", "entry id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func listQuery(r *http.Request) ListQuery {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return ListQuery{Limit: limit, Offset: offset}
}
