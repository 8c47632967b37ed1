package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"

	"milestone-escrow/dispute"
	"milestone-escrow/errs"
	"milestone-escrow/events"
	"milestone-escrow/funding"
	"milestone-escrow/repository"
	"milestone-escrow/reputation"
)

// Balances reports withdrawable payout balances
type Balances interface {
	Balance(identity string) (*uint256.Int, error)
}

// Services are the collaborators the HTTP API is built on
type Services struct {
	Funding    *funding.Engine
	Disputes   *dispute.Engine
	Reputation *reputation.Ledger
	Balances   Balances
	Store      repository.LedgerStore
	Hub        *events.Hub
	Metrics    http.Handler // optional
	Admins     []string
}

// Handler contains the HTTP handlers for the escrow API endpoints
type Handler struct {
	Services
	admins map[string]struct{}
}

// NewHandler creates and returns a new Handler instance
func NewHandler(svc Services) *Handler {
	admins := make(map[string]struct{}, len(svc.Admins))
	for _, a := range svc.Admins {
		admins[a] = struct{}{}
	}
	return &Handler{Services: svc, admins: admins}
}

type milestonePlan struct {
	Description       string `json:"description"`
	FundingPercentage uint64 `json:"funding_percentage"`
}

type createProjectRequest struct {
	ContentHash  string          `json:"content_hash"`
	FundingGoal  *uint256.Int    `json:"funding_goal"`
	DurationDays int             `json:"duration_days"`
	Milestones   []milestonePlan `json:"milestones"`
}

// CreateProject handles POST /projects; the caller becomes the owner
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	owner, err := identity(r)
	if err != nil {
		writeError(w, "create project", err)
		return
	}
	var req createProjectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "create project", err)
		return
	}

	descriptions := make([]string, len(req.Milestones))
	percentages := make([]uint64, len(req.Milestones))
	for i, m := range req.Milestones {
		descriptions[i] = m.Description
		percentages[i] = m.FundingPercentage
	}

	id, err := h.Funding.CreateProject(r.Context(), owner, req.ContentHash, req.FundingGoal, req.DurationDays, descriptions, percentages)
	if err != nil {
		writeError(w, "create project", err)
		return
	}
	p, err := h.Funding.Project(id)
	if err != nil {
		writeError(w, "load project", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Project created successfully",
		"project": p,
	})
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.Funding.Projects()
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": list})
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "get project", err)
		return
	}
	p, err := h.Funding.Project(id)
	if err != nil {
		writeError(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"project": p})
}

func (h *Handler) ProjectsByOwner(w http.ResponseWriter, r *http.Request) {
	list, err := h.Funding.ProjectsByOwner(mux.Vars(r)["owner"])
	if err != nil {
		writeError(w, "list owner projects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": list})
}

type donateRequest struct {
	Amount *uint256.Int `json:"amount"`
}

func (h *Handler) Donate(w http.ResponseWriter, r *http.Request) {
	donor, err := identity(r)
	if err != nil {
		writeError(w, "donate", err)
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "donate", err)
		return
	}
	var req donateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "donate", err)
		return
	}
	if err := h.Funding.Donate(r.Context(), id, donor, req.Amount); err != nil {
		writeError(w, "donate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Donation accepted"})
}

type proofRequest struct {
	ProofHash string `json:"proof_hash"`
}

func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, "submit proof", err)
		return
	}
	id, mid, err := projectMilestone(r)
	if err != nil {
		writeError(w, "submit proof", err)
		return
	}
	var req proofRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "submit proof", err)
		return
	}
	if err := h.Funding.SubmitMilestoneProof(r.Context(), id, caller, mid, req.ProofHash); err != nil {
		writeError(w, "submit proof", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Proof submitted"})
}

func (h *Handler) CastValidation(w http.ResponseWriter, r *http.Request) {
	validator, err := identity(r)
	if err != nil {
		writeError(w, "cast validation", err)
		return
	}
	id, mid, err := projectMilestone(r)
	if err != nil {
		writeError(w, "cast validation", err)
		return
	}
	if err := h.Funding.CastValidationVote(r.Context(), id, mid, validator); err != nil {
		writeError(w, "cast validation", err)
		return
	}
	p, err := h.Funding.Project(id)
	if err != nil {
		writeError(w, "load project", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Validation recorded",
		"milestone": p.Milestone(mid),
	})
}

func (h *Handler) ExpireMilestone(w http.ResponseWriter, r *http.Request) {
	id, mid, err := projectMilestone(r)
	if err != nil {
		writeError(w, "expire milestone", err)
		return
	}
	if err := h.Funding.ExpireMilestone(r.Context(), id, mid); err != nil {
		writeError(w, "expire milestone", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Milestone rejected"})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelProject(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, "cancel project", err)
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "cancel project", err)
		return
	}
	var req cancelRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "cancel project", err)
		return
	}
	if err := h.Funding.CancelProject(r.Context(), id, caller, req.Reason); err != nil {
		writeError(w, "cancel project", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project cancelled"})
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	donor, err := identity(r)
	if err != nil {
		writeError(w, "refund", err)
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, "refund", err)
		return
	}
	amount, err := h.Funding.RequestRefund(r.Context(), id, donor)
	if err != nil {
		writeError(w, "refund", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Refund issued",
		"amount":  amount,
	})
}

func projectMilestone(r *http.Request) (uint64, int, error) {
	id, err := pathUint(r, "id")
	if err != nil {
		return 0, 0, err
	}
	mid, err := pathInt(r, "mid")
	if err != nil {
		return 0, 0, err
	}
	return id, mid, nil
}

type reputationGrantRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) GetReputation(w http.ResponseWriter, r *http.Request) {
	who := mux.Vars(r)["identity"]
	score, err := h.Reputation.Score(r.Context(), who)
	if err != nil {
		writeError(w, "get reputation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"identity": who, "score": score})
}

// GrantReputation is restricted to the configured admin identities
func (h *Handler) GrantReputation(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, "grant reputation", err)
		return
	}
	if _, ok := h.admins[caller]; !ok {
		writeError(w, "grant reputation", errs.Detail(errs.ErrUnauthorized, "%q is not an administrator", caller))
		return
	}
	var req reputationGrantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "grant reputation", err)
		return
	}
	who := mux.Vars(r)["identity"]
	score, err := h.Reputation.Grant(r.Context(), who, req.Amount)
	if err != nil {
		writeError(w, "grant reputation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"identity": who, "score": score})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	who := mux.Vars(r)["identity"]
	bal, err := h.Balances.Balance(who)
	if err != nil {
		writeError(w, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"identity": who, "balance": bal})
}
