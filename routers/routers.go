package routers

import (
	"milestone-escrow/handlers"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all the HTTP routes for the escrow API
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Projects: the X-Identity caller is the owner
	r.HandleFunc("/projects", h.CreateProject).Methods("POST")
	r.HandleFunc("/projects", h.ListProjects).Methods("GET")
	r.HandleFunc("/projects/{id:[0-9]+}", h.GetProject).Methods("GET")
	r.HandleFunc("/owners/{owner}/projects", h.ProjectsByOwner).Methods("GET")

	// Escrow movements
	r.HandleFunc("/projects/{id:[0-9]+}/donations", h.Donate).Methods("POST")
	r.HandleFunc("/projects/{id:[0-9]+}/cancel", h.CancelProject).Methods("POST")
	r.HandleFunc("/projects/{id:[0-9]+}/refund", h.RequestRefund).Methods("POST")

	// Milestone lifecycle
	r.HandleFunc("/projects/{id:[0-9]+}/milestones/{mid:[0-9]+}/proof", h.SubmitProof).Methods("POST")
	r.HandleFunc("/projects/{id:[0-9]+}/milestones/{mid:[0-9]+}/validations", h.CastValidation).Methods("POST")
	r.HandleFunc("/projects/{id:[0-9]+}/milestones/{mid:[0-9]+}/expire", h.ExpireMilestone).Methods("POST")

	// Disputes
	r.HandleFunc("/disputes", h.FileDispute).Methods("POST")
	r.HandleFunc("/disputes", h.ListDisputes).Methods("GET")
	r.HandleFunc("/disputes/{id:[0-9]+}", h.GetDispute).Methods("GET")
	r.HandleFunc("/disputes/{id:[0-9]+}/votes", h.CastDisputeVote).Methods("POST")
	r.HandleFunc("/disputes/{id:[0-9]+}/resolve", h.ResolveDispute).Methods("POST")

	// Reputation and payout balances
	r.HandleFunc("/reputation/{identity}", h.GetReputation).Methods("GET")
	r.HandleFunc("/reputation/{identity}", h.GrantReputation).Methods("POST")
	r.HandleFunc("/balances/{identity}", h.GetBalance).Methods("GET")

	// Event log and live feed
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/events/stream", h.StreamEvents).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}
}
