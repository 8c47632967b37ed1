package handlers

import (
	"net/http"
)

type fileDisputeRequest struct {
	ProjectID    uint64 `json:"project_id"`
	MilestoneID  int    `json:"milestone_id"`
	Description  string `json:"description"`
	EvidenceHash string `json:"evidence_hash"`
}

// FileDispute handles POST /disputes; the caller is the reporter
func (h *Handler) FileDispute(w http.ResponseWriter, r *http.Request) {
	reporter, err := identity(r)
	if err != nil {
		writeError(w, "file dispute", err)
		return
	}
	var req fileDisputeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "file dispute", err)
		return
	}
	id, err := h.Disputes.FileDispute(r.Context(), req.ProjectID, req.MilestoneID, reporter, req.Description, req.EvidenceHash)
	if err != nil {
		writeError(w, "file dispute", err)
		return
	}
	d, err := h.Disputes.Dispute(id)
	if err != nil {
		writeError(w, "load dispute", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Dispute filed successfully",
		"dispute": d,
	})
}

func (h *Handler) ListDisputes(w http.ResponseWriter, r *http.Request) {
	list, err := h.Disputes.Disputes()
	if err != nil {
		writeError(w, "list disputes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"disputes": list})
}

func (h *Handler) GetDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "get dispute", err)
		return
	}
	d, err := h.Disputes.Dispute(id)
	if err != nil {
		writeError(w, "get dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dispute": d})
}

type disputeVoteRequest struct {
	Choice string `json:"choice"`
}

func (h *Handler) CastDisputeVote(w http.ResponseWriter, r *http.Request) {
	voter, err := identity(r)
	if err != nil {
		writeError(w, "cast dispute vote", err)
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "cast dispute vote", err)
		return
	}
	var req disputeVoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "cast dispute vote", err)
		return
	}
	if err := h.Disputes.CastDisputeVote(r.Context(), id, voter, req.Choice); err != nil {
		writeError(w, "cast dispute vote", err)
		return
	}
	d, err := h.Disputes.Dispute(id)
	if err != nil {
		writeError(w, "load dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Vote recorded",
		"dispute": d,
	})
}

// ResolveDispute finalizes a dispute whose voting window closed
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "resolve dispute", err)
		return
	}
	if err := h.Disputes.ResolveExpiredDispute(r.Context(), id); err != nil {
		writeError(w, "resolve dispute", err)
		return
	}
	d, err := h.Disputes.Dispute(id)
	if err != nil {
		writeError(w, "load dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"dispute": d})
}
