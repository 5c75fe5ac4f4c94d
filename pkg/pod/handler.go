package pod

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/httpserver"
	"github.com/kuberdock/kuberdock/internal/principal"
)

// Handler exposes the Pod Controller's CRUD and command-protocol
// operations over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a pod HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Mount registers pod routes on r. Pod commands (start/stop/redeploy/...)
// share a single envelope endpoint, mirroring PodCollection.update's
// command dispatch.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/pods", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleCommand)
		r.Delete("/{id}", h.handleDelete)
	})
	r.Route("/yamlapi", func(r chi.Router) {
		r.Post("/", h.handleCreateYAML)
	})
}

type podResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	Unpaid          bool    `json:"unpaid"`
	KubeType        int     `json:"kube_type"`
	NodeHostname    *string `json:"node,omitempty"`
	PublicIP        *string `json:"public_ip,omitempty"`
	PostDescription string  `json:"postDescription,omitempty"`
}

func toPodResponse(p Pod) podResponse {
	return podResponse{
		ID:              p.ID,
		Name:            p.Name,
		Status:          string(p.Status),
		Unpaid:          p.Unpaid,
		KubeType:        p.KubeType,
		NodeHostname:    p.NodeHostname,
		PublicIP:        p.PublicIP,
		PostDescription: p.PostDescription,
	}
}

func callerOwnerID(r *http.Request) (int, *principal.Principal, error) {
	p := principal.FromContext(r.Context())
	id, err := strconv.Atoi(p.UserID)
	if err != nil {
		return 0, p, err
	}
	return id, p, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, _, err := callerOwnerID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}
	pods, err := h.svc.List(r.Context(), ownerID)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	resp := make([]podResponse, 0, len(pods))
	for _, p := range pods {
		resp = append(resp, toPodResponse(p))
	}
	httpserver.RespondOK(w, r, http.StatusOK, resp)
}

type createRequest struct {
	Spec      Spec `json:"spec"`
	PackageID int  `json:"package_id,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, _, err := callerOwnerID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.Create(r.Context(), ownerID, req.PackageID, req.Spec)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusCreated, toPodResponse(p))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	caller := principal.FromContext(r.Context())
	if !caller.Owns(strconv.Itoa(p.OwnerID)) {
		httpserver.RespondAPIError(w, r, h.logger, apierr.New(apierr.KindPermissionDenied, "not your pod"))
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, toPodResponse(p))
}

// commandRequest is the command-protocol envelope: exactly one of the
// optional fields is set, matching which Command names.
type commandRequest struct {
	Command         string          `json:"command" validate:"required"`
	ApplyEdit       bool            `json:"applyEdit,omitempty"`
	Spec            *Spec           `json:"spec,omitempty"`
	Name            *string         `json:"name,omitempty"`
	PostDescription *string         `json:"postDescription,omitempty"`
	Status          *string         `json:"status,omitempty"`
	ContainerKubes  map[string]int  `json:"kubes,omitempty"`
	NodeHostname    *string         `json:"node,omitempty"`
	PublicIP        *string         `json:"podIP,omitempty"`
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req commandRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ownerID, caller, err := callerOwnerID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}

	ctx := r.Context()
	switch req.Command {
	case "start":
		err = h.svc.Start(ctx, id, ownerID, caller.IsAdmin, caller.FixedPrice)
	case "stop":
		err = h.svc.Stop(ctx, id, ownerID, caller.IsAdmin)
	case "redeploy":
		err = h.svc.Redeploy(ctx, id, ownerID, caller.IsAdmin, caller.FixedPrice, req.ApplyEdit, req.Spec)
	case "set":
		var status *Status
		if req.Status != nil {
			s := Status(*req.Status)
			status = &s
		}
		err = h.svc.Set(ctx, id, ownerID, caller.IsAdmin, req.Name, req.PostDescription, status)
	case "resize":
		err = h.svc.Resize(ctx, id, ownerID, caller.IsAdmin, req.ContainerKubes)
	case "change_config":
		if !caller.IsInternal {
			err = apierr.New(apierr.KindPermissionDenied, "change_config is internal-only")
			break
		}
		err = h.svc.ChangeConfig(ctx, id, req.NodeHostname, req.PublicIP)
	case "container_start", "container_stop", "container_delete":
		// reserved no-op commands, accepted for API compatibility.
	default:
		err = apierr.New(apierr.KindValidationError, "unknown command: "+req.Command)
	}

	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}

	p, err := h.svc.Get(ctx, id)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, toPodResponse(p))
}

type yamlCreateRequest struct {
	Data      string `json:"data" validate:"required"`
	PackageID int    `json:"package_id,omitempty"`
}

func (h *Handler) handleCreateYAML(w http.ResponseWriter, r *http.Request) {
	ownerID, _, err := callerOwnerID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}
	var req yamlCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.svc.CreateFromYAML(r.Context(), ownerID, req.PackageID, req.Data)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusCreated, toPodResponse(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ownerID, caller, err := callerOwnerID(r)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}
	if err := h.svc.Delete(r.Context(), id, ownerID, caller.IsAdmin); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
