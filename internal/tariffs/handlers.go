package tariffs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"veil/internal/auth"
	"veil/internal/models"
	"veil/internal/repo"

	"github.com/gorilla/mux"
)

type Handler struct{ store *repo.TariffStore }

func NewHandler(store *repo.TariffStore) *Handler { return &Handler{store: store} }

type createIn struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
	PriceCents   int64  `json:"price_cents"`
}

// POST /tariffs/ — только админ
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok || !p.Admin {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "admin only", nil)
		return
	}
	var in createIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	if strings.TrimSpace(in.Name) == "" || in.PriceCents < 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "name and non-negative price_cents required", nil)
		return
	}
	t := &models.Tariff{
		Name:         in.Name,
		Description:  in.Description,
		DurationDays: in.DurationDays,
		PriceCents:   in.PriceCents,
	}
	if err := h.store.Create(r.Context(), t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			models.WriteProblem(w, http.StatusConflict, "Conflict", "tariff name already exists", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "create failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusCreated, t)
}

// GET /tariffs/
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "list failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

// GET /tariffs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	t, err := h.store.GetByID(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not Found", "tariff not found", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "get failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, t)
}

func RegisterRoutes(r *mux.Router, h *Handler, jwtSecret string) {
	sub := r.PathPrefix("/tariffs").Subrouter()
	sub.Use(auth.Bearer(jwtSecret))
	sub.HandleFunc("/", h.Create).Methods(http.MethodPost)
	sub.HandleFunc("/", h.List).Methods(http.MethodGet)
	sub.HandleFunc("/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
}
