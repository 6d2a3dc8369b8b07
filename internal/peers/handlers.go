package peers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"veil/internal/auth"
	"veil/internal/models"
	"veil/internal/wgeasy"

	"github.com/gorilla/mux"
)

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

type createIn struct {
	UserID      uint   `json:"user_id,omitempty"`
	WGPublicKey string `json:"wg_public_key,omitempty"`
	WGIP        string `json:"wg_ip,omitempty"`
	AllowedIPs  string `json:"allowed_ips,omitempty"`
	DeviceName  string `json:"device_name,omitempty"`
}

type peerOut struct {
	ID          uint   `json:"id"`
	UserID      uint   `json:"user_id"`
	WGPublicKey string `json:"wg_public_key"`
	// Приватный ключ присутствует только в ответе на создание.
	WGPrivateKey *string   `json:"wg_private_key"`
	WGIP         string    `json:"wg_ip"`
	AllowedIPs   string    `json:"allowed_ips,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// toPeerOut вычищает приватный ключ активно: read/list никогда
// не полагаются на то, что поле «и так пустое».
func toPeerOut(p *models.VpnPeer, includePrivate bool) peerOut {
	out := peerOut{
		ID:          p.ID,
		UserID:      p.UserID,
		WGPublicKey: p.WGPublicKey,
		WGIP:        p.WGIP,
		AllowedIPs:  p.AllowedIPs,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
	}
	if includePrivate && p.WGPrivateKey != "" {
		key := p.WGPrivateKey
		out.WGPrivateKey = &key
	}
	return out
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	var up *wgeasy.UpstreamError
	switch {
	case errors.Is(err, ErrNotAllowed):
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "not allowed", nil)
	case errors.Is(err, ErrSubscriptionRequired):
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", "active subscription required", nil)
	case errors.Is(err, ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "peer not found", nil)
	case errors.Is(err, ErrConflict):
		models.WriteProblem(w, http.StatusConflict, "Conflict", "duplicate public key or address", nil)
	case errors.Is(err, ErrDecrypt):
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "config decryption failed", nil)
	case errors.As(err, &ve):
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", ve.Msg, nil)
	case errors.As(err, &up):
		models.WriteProblem(w, http.StatusBadGateway, "Bad Gateway", "vpn control-plane request failed", nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "operation failed", nil)
	}
}

func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "no principal", nil)
	}
	return p, ok
}

// POST /vpn_peers/
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

// POST /vpn_peers/self — user_id принудительно равен вызывающему
func (h *Handler) CreateSelf(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, selfService bool) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in createIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	if selfService {
		in.UserID = p.UserID
	}
	peer, err := h.svc.Create(r.Context(), p, CreateInput{
		UserID:     in.UserID,
		PublicKey:  in.WGPublicKey,
		Address:    in.WGIP,
		AllowedIPs: in.AllowedIPs,
		DeviceName: in.DeviceName,
	}, selfService)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, toPeerOut(peer, true))
}

// GET /vpn_peers/?user_id=&skip=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	userID, _ := strconv.ParseUint(q.Get("user_id"), 10, 32)
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	list, err := h.svc.List(r.Context(), p, uint(userID), skip, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]peerOut, 0, len(list))
	for i := range list {
		out = append(out, toPeerOut(&list[i], false))
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// GET /vpn_peers/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := pathID(r)
	peer, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, toPeerOut(peer, false))
}

// PUT /vpn_peers/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var in createIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "invalid json body", nil)
		return
	}
	peer, err := h.svc.Update(r.Context(), p, pathID(r), UpdateInput{
		PublicKey:  in.WGPublicKey,
		Address:    in.WGIP,
		AllowedIPs: in.AllowedIPs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, toPeerOut(peer, false))
}

// DELETE /vpn_peers/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), p, pathID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"msg": "deleted"})
}

// GET /vpn_peers/self/config
func (h *Handler) SelfConfig(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	text, err := h.svc.SelfConfig(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"wg_quick": text})
}

func pathID(r *http.Request) uint {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	return uint(id)
}

// RegisterRoutes вешает /vpn_peers за bearer-аутентификацией.
func RegisterRoutes(r *mux.Router, h *Handler, jwtSecret string) {
	sub := r.PathPrefix("/vpn_peers").Subrouter()
	sub.Use(auth.Bearer(jwtSecret))

	sub.HandleFunc("/", h.Create).Methods(http.MethodPost)
	sub.HandleFunc("/self", h.CreateSelf).Methods(http.MethodPost)
	sub.HandleFunc("/self/config", h.SelfConfig).Methods(http.MethodGet)
	sub.HandleFunc("/", h.List).Methods(http.MethodGet)
	sub.HandleFunc("/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	sub.HandleFunc("/{id:[0-9]+}", h.Update).Methods(http.MethodPut)
	sub.HandleFunc("/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}
