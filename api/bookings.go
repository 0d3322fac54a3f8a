package api

import (
	"net/http"

	"github.com/garnizeh/bidflow/internal/scheduling"
)

// SchedulingSignatureHeader carries the scheduling provider's signature.
const SchedulingSignatureHeader = "Scheduling-Signature"

type BookingsHandler struct {
	svc SchedulingService
}

func NewBookingsHandler(svc SchedulingService) *BookingsHandler {
	return &BookingsHandler{svc: svc}
}

func (h *BookingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req scheduling.BookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.CreateBooking(r.Context(), a, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res, http.StatusCreated)
}

func (h *BookingsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.HandleNotification(r.Context(), r.Header.Get(SchedulingSignatureHeader), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}
