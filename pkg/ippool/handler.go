package ippool

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/httpserver"
	"github.com/kuberdock/kuberdock/internal/principal"
)

// Handler exposes the IP-Pool Manager's public operations over HTTP.
// Network administration (create/delete/block/unblock) is admin-only;
// get-free and assign are used internally by the pod controller.
//
// A network is identified by its CIDR ("10.0.0.0/24"), which contains a
// slash, so it travels as a query parameter or JSON field rather than a
// path segment.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates an ippool HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Mount registers ippool routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/ippool", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Delete("/", h.handleDelete)
		r.Get("/network", h.handleGet)
		r.Post("/block", h.handleBlock)
		r.Post("/unblock", h.handleUnblock)
		r.Post("/unbind", h.handleUnbind)
		r.Get("/free", h.handleGetFree)
	})
}

type createRequest struct {
	Network    string  `json:"network" validate:"required"`
	IPv6       bool    `json:"ipv6"`
	Node       *string `json:"node,omitempty"`
	ExcludeIPs string  `json:"exclude_ip_ranges,omitempty"`
}

type networkRequest struct {
	Network string `json:"network" validate:"required"`
}

type ipRequest struct {
	Network string `json:"network" validate:"required"`
	IP      string `json:"ip" validate:"required"`
}

type poolResponse struct {
	Network string   `json:"network"`
	IPv6    bool     `json:"ipv6"`
	Node    *string  `json:"node,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

func toPoolResponse(p Pool) poolResponse {
	resp := poolResponse{Network: p.Network, IPv6: p.IPv6, Node: p.NodeHostname}
	for _, ip := range p.BlockedList {
		resp.Blocked = append(resp.Blocked, FormatIP(ip))
	}
	return resp
}

func requireAdmin(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	if !principal.FromContext(r.Context()).IsAdmin {
		httpserver.RespondAPIError(w, r, logger, apierr.New(apierr.KindPermissionDenied, "admin privileges required"))
		return false
	}
	return true
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	pools, err := h.svc.store.List(r.Context())
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	resp := make([]poolResponse, 0, len(pools))
	for _, p := range pools {
		resp = append(resp, toPoolResponse(p))
	}
	httpserver.RespondOK(w, r, http.StatusOK, resp)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Create(r.Context(), req.Network, req.IPv6, req.Node, req.ExcludeIPs)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusCreated, toPoolResponse(p))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	network := r.URL.Query().Get("network")
	p, err := h.svc.store.Get(r.Context(), network)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, toPoolResponse(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	var req networkRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := h.svc.Delete(r.Context(), req.Network); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleBlock(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	var req ipRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ip, err := ParseIP(req.IP)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Block(r.Context(), req.Network, ip); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "blocked"})
}

func (h *Handler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	var req ipRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ip, err := ParseIP(req.IP)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Unblock(r.Context(), req.Network, ip); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "unblocked"})
}

func (h *Handler) handleUnbind(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r, h.logger) {
		return
	}
	var req ipRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	ip, err := ParseIP(req.IP)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Unbind(r.Context(), req.Network, ip); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "unbound"})
}

func (h *Handler) handleGetFree(w http.ResponseWriter, r *http.Request) {
	ip, err := h.svc.GetFree(r.Context(), nil, r.URL.Query().Get("ip"))
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"ip": ip})
}
