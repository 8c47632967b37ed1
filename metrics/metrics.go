package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var _ Metrics = (*metricsImpl)(nil)

type Metrics interface {
	IncProjectsCreated()
	IncDonations()
	IncValidationVotes()
	IncReleases()
	IncRefunds()
	IncMilestonesExpired()
	IncDisputesFiled()
	IncDisputeVotes()
	// MarkDisputeFinalized counts a finalized dispute under its outcome label
	MarkDisputeFinalized(outcome string)
	IncTransferFailures()
}

type metricsImpl struct {
	projectsCreated, donations, validationVotes, releases, refunds prometheus.Counter
	milestonesExpired, disputesFiled, disputeVotes, transferFailures prometheus.Counter

	disputesFinalized *prometheus.CounterVec
}

func (m *metricsImpl) IncProjectsCreated()   { m.projectsCreated.Inc() }
func (m *metricsImpl) IncDonations()         { m.donations.Inc() }
func (m *metricsImpl) IncValidationVotes()   { m.validationVotes.Inc() }
func (m *metricsImpl) IncReleases()          { m.releases.Inc() }
func (m *metricsImpl) IncRefunds()           { m.refunds.Inc() }
func (m *metricsImpl) IncMilestonesExpired() { m.milestonesExpired.Inc() }
func (m *metricsImpl) IncDisputesFiled()     { m.disputesFiled.Inc() }
func (m *metricsImpl) IncDisputeVotes()      { m.disputeVotes.Inc() }
func (m *metricsImpl) IncTransferFailures()  { m.transferFailures.Inc() }

func (m *metricsImpl) MarkDisputeFinalized(outcome string) {
	m.disputesFinalized.WithLabelValues(outcome).Inc()
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Name:      name,
		Help:      help,
	})
}

// New creates the escrow metrics and registers them with registerer
func New(registerer prometheus.Registerer) (Metrics, error) {
	m := &metricsImpl{
		projectsCreated:   counter("projects_created_total", "Number of projects created"),
		donations:         counter("donations_total", "Number of accepted donations"),
		validationVotes:   counter("validation_votes_total", "Number of recorded milestone validation votes"),
		releases:          counter("releases_total", "Number of milestone tranches released"),
		refunds:           counter("refunds_total", "Number of donor refunds paid"),
		milestonesExpired: counter("milestones_expired_total", "Number of submitted milestones rejected after the validation window"),
		disputesFiled:     counter("disputes_filed_total", "Number of disputes filed"),
		disputeVotes:      counter("dispute_votes_total", "Number of recorded dispute votes"),
		transferFailures:  counter("transfer_failures_total", "Number of payout batches refused by the sink"),
		disputesFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "disputes_finalized_total",
			Help:      "Number of finalized disputes by outcome",
		}, []string{"outcome"}),
	}

	var errs error
	for _, c := range []prometheus.Collector{
		m.projectsCreated,
		m.donations,
		m.validationVotes,
		m.releases,
		m.refunds,
		m.milestonesExpired,
		m.disputesFiled,
		m.disputeVotes,
		m.transferFailures,
		m.disputesFinalized,
	} {
		errs = errors.Join(errs, registerer.Register(c))
	}
	return m, errs
}
