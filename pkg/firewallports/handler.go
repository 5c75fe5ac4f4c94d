package firewallports

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/httpserver"
	"github.com/kuberdock/kuberdock/internal/principal"
)

// Handler exposes allowed/restricted port CRUD over HTTP. Both lists are
// cluster-wide and admin-managed.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler creates a firewallports HTTP handler.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Mount registers /allowed-ports and /restricted-ports routes on r.
func (h *Handler) Mount(r chi.Router) {
	h.mountKind(r, "/allowed-ports", KindAllowed)
	h.mountKind(r, "/restricted-ports", KindRestricted)
}

func (h *Handler) mountKind(r chi.Router, prefix string, kind Kind) {
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", h.handleList(kind))
		r.Post("/", h.handleAdd(kind))
		r.Delete("/{port}/{protocol}", h.handleRemove(kind))
	})
}

type ruleResponse struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

type ruleRequest struct {
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Protocol string `json:"protocol" validate:"required,oneof=tcp udp"`
}

func requireAdmin(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	if !principal.FromContext(r.Context()).IsAdmin {
		httpserver.RespondAPIError(w, r, logger, apierr.New(apierr.KindPermissionDenied, "admin privileges required"))
		return false
	}
	return true
}

func (h *Handler) handleList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := h.store.List(r.Context(), kind)
		if err != nil {
			httpserver.RespondAPIError(w, r, h.logger, err)
			return
		}
		resp := make([]ruleResponse, 0, len(rules))
		for _, rule := range rules {
			resp = append(resp, ruleResponse{Port: rule.Port, Protocol: string(rule.Protocol)})
		}
		httpserver.RespondOK(w, r, http.StatusOK, resp)
	}
}

func (h *Handler) handleAdd(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r, h.logger) {
			return
		}
		var req ruleRequest
		if !httpserver.DecodeAndValidate(w, r, &req) {
			return
		}
		rule := Rule{Port: req.Port, Protocol: Protocol(req.Protocol)}
		if err := h.store.Add(r.Context(), kind, rule); err != nil {
			httpserver.RespondAPIError(w, r, h.logger, err)
			return
		}
		httpserver.RespondOK(w, r, http.StatusCreated, ruleResponse{Port: rule.Port, Protocol: string(rule.Protocol)})
	}
}

func (h *Handler) handleRemove(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r, h.logger) {
			return
		}
		port, err := strconv.Atoi(chi.URLParam(r, "port"))
		if err != nil {
			httpserver.RespondError(w, r, http.StatusBadRequest, "invalid port")
			return
		}
		protocol := chi.URLParam(r, "protocol")
		rule := Rule{Port: port, Protocol: Protocol(protocol)}
		if err := h.store.Remove(r.Context(), kind, rule); err != nil {
			httpserver.RespondAPIError(w, r, h.logger, err)
			return
		}
		httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
