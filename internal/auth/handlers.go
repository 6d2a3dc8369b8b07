package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"veil/internal/models"
	"veil/internal/repo"

	"github.com/gorilla/mux"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

type registerIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginIn registerIn

type tokenOut struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type subscribeIn struct {
	TariffID uint `json:"tariff_id"`
}

// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in registerIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	if !strings.Contains(in.Email, "@") || len(in.Password) < 8 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request",
			"email and password (min 8 chars) required", nil)
		return
	}
	u, err := h.svc.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			models.WriteProblem(w, http.StatusConflict, "Conflict", err.Error(), nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "registration failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusCreated, u)
}

// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	token, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "bad credentials", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "login failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, tokenOut{AccessToken: token, TokenType: "bearer"})
}

// GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no principal", nil)
		return
	}
	u, err := h.svc.CurrentUser(r.Context(), p)
	if err != nil {
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "user not found", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, u)
}

// POST /auth/subscribe — подписка текущего пользователя на тариф
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no principal", nil)
		return
	}
	var in subscribeIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.TariffID == 0 {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "tariff_id required", nil)
		return
	}
	ut, err := h.svc.Subscribe(r.Context(), p.UserID, in.TariffID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not Found", "tariff not found", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "subscribe failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, ut)
}

// POST /auth/users/{id}/admin — только для админа
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok || !p.Admin {
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "admin only", nil)
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid user id", nil)
		return
	}
	if err := h.svc.PromoteAdmin(r.Context(), uint(id)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			models.WriteProblem(w, http.StatusNotFound, "Not Found", "user not found", nil)
			return
		}
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "promote failed", nil)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"msg": "ok"})
}

// RegisterRoutes вешает публичные и защищённые маршруты /auth.
func RegisterRoutes(r *mux.Router, h *Handler, jwtSecret string) {
	pub := r.PathPrefix("/auth").Subrouter()
	pub.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	pub.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	priv := r.PathPrefix("/auth").Subrouter()
	priv.Use(Bearer(jwtSecret))
	priv.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	priv.HandleFunc("/subscribe", h.Subscribe).Methods(http.MethodPost)
	priv.HandleFunc("/users/{id:[0-9]+}/admin", h.Promote).Methods(http.MethodPost)
}
