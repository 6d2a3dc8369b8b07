package payments

import (
	"encoding/json"
	"net/http"
	"strconv"

	"veil/internal/auth"
	"veil/internal/models"
	"veil/internal/repo"

	"github.com/gorilla/mux"
)

type Handler struct{ store *repo.PaymentStore }

func NewHandler(store *repo.PaymentStore) *Handler { return &Handler{store: store} }

type createIn struct {
	UserID      uint   `json:"user_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// POST /payments/ — запись о платеже; провайдерской интеграции нет,
// статус меняется вручную/внешним процессом.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no principal", nil)
		return
	}
	var in createIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	userID := in.UserID
	if userID == 0 {
		userID = p.UserID
	}
	if !p.Admin && userID != p.UserID {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "not allowed", nil)
		return
	}
	if in.AmountCents <= 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "positive amount_cents required", nil)
		return
	}
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}
	pay := &models.Payment{
		UserID:      userID,
		AmountCents: in.AmountCents,
		Currency:    currency,
		Status:      "pending",
		Provider:    in.Provider,
	}
	if err := h.store.Create(r.Context(), pay); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "create failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusCreated, pay)
}

// GET /payments/?user_id=&skip=&limit= — не-админ видит только свои
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no principal", nil)
		return
	}
	q := r.URL.Query()
	userID64, _ := strconv.ParseUint(q.Get("user_id"), 10, 32)
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	userID := uint(userID64)
	if userID != 0 {
		if !p.Admin && userID != p.UserID {
			models.WriteProblem(w, http.StatusForbidden, "Forbidden", "not allowed", nil)
			return
		}
	} else if !p.Admin {
		userID = p.UserID
	}
	list, err := h.store.List(r.Context(), userID, skip, limit)
	if err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "list failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, list)
}

func RegisterRoutes(r *mux.Router, h *Handler, jwtSecret string) {
	sub := r.PathPrefix("/payments").Subrouter()
	sub.Use(auth.Bearer(jwtSecret))
	sub.HandleFunc("/", h.Create).Methods(http.MethodPost)
	sub.HandleFunc("/", h.List).Methods(http.MethodGet)
}
