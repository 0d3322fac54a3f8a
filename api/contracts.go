package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/bidflow/internal/apperr"
)

type ContractsHandler struct {
	ledger MilestoneLedger
}

func NewContractsHandler(ledger MilestoneLedger) *ContractsHandler {
	return &ContractsHandler{ledger: ledger}
}

type milestoneRequest struct {
	ContractID  string `json:"contractId"`
	MilestoneID string `json:"milestoneId"`
}

func (h *ContractsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	c, err := h.ledger.Contract(r.Context(), a, mux.Vars(r)["contractId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c, http.StatusOK)
}

// Milestone applies submit, approve or pay. The ids come from the path, or
// from the body on the /v1/milestones/{action} form.
func (h *ContractsHandler) Milestone(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	req := milestoneRequest{ContractID: vars["contractId"], MilestoneID: vars["milestoneId"]}
	if req.ContractID == "" || req.MilestoneID == "" {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ContractID == "" || req.MilestoneID == "" {
		writeError(w, apperr.New(apperr.ErrValidation, "contractId and milestoneId are required"))
		return
	}

	ctx := r.Context()
	var (
		out any
		err error
	)
	switch vars["action"] {
	case "submit":
		out, err = h.ledger.Submit(ctx, a, req.ContractID, req.MilestoneID)
	case "approve":
		out, err = h.ledger.Approve(ctx, a, req.ContractID, req.MilestoneID)
	case "pay":
		out, err = h.ledger.Pay(ctx, a, req.ContractID, req.MilestoneID)
	default:
		err = apperr.New(apperr.ErrNotFound, "unknown milestone action %q", vars["action"])
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, out, http.StatusOK)
}
