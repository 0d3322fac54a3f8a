package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/bidflow/internal/apperr"
	"github.com/garnizeh/bidflow/internal/negotiation"
	"github.com/garnizeh/bidflow/pkg/models"
)

type NegotiationsHandler struct {
	svc NegotiationService
}

func NewNegotiationsHandler(svc NegotiationService) *NegotiationsHandler {
	return &NegotiationsHandler{svc: svc}
}

type respondRequest struct {
	Accept *bool `json:"accept"`
}

func (h *NegotiationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), a, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, v, http.StatusOK)
}

// Interest records the winning contractor's answer to the expression of
// interest.
func (h *NegotiationsHandler) Interest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.RespondInterest)
}

// Intent records the owner's answer to the letter of intent.
func (h *NegotiationsHandler) Intent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.svc.RespondIntent)
}

func (h *NegotiationsHandler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Actor, string, bool) (*negotiation.View, error)) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Accept == nil {
		writeError(w, apperr.New(apperr.ErrValidation, "accept is required"))
		return
	}
	v, err := fn(r.Context(), a, mux.Vars(r)["id"], *req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, v, http.StatusOK)
}
