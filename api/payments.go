package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/bidflow/internal/payments"
)

// PaymentSignatureHeader carries the gateway's notification signature.
const PaymentSignatureHeader = "Gateway-Signature"

type PaymentsHandler struct {
	svc PaymentService
}

func NewPaymentsHandler(svc PaymentService) *PaymentsHandler {
	return &PaymentsHandler{svc: svc}
}

func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	var req payments.CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.CreateCheckout(r.Context(), a, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

func (h *PaymentsHandler) Status(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	p, err := h.svc.PaymentStatus(r.Context(), a, mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

// Webhook acknowledges every notification that verifies and parses, whether
// or not it changed anything. Store failures answer 500 so the gateway
// retries.
func (h *PaymentsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, err)
		return
	}
	action, err := h.svc.HandleNotification(r.Context(), r.Header.Get(PaymentSignatureHeader), body)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Debug("payment notification", slog.String("action", action))
	writeJSON(w, map[string]bool{"received": true}, http.StatusOK)
}
