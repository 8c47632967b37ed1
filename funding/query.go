package funding

import (
	"time"

	"milestone-escrow/models"
	"milestone-escrow/repository"
)

// SubmissionRef points at one submitted milestone
type SubmissionRef struct {
	ProjectID   uint64
	MilestoneID int
}

func (e *Engine) Project(id uint64) (*models.Project, error) {
	var p *models.Project
	err := e.store.View(func(r repository.Reader) error {
		var err error
		p, err = r.GetProject(id)
		return err
	})
	return p, err
}

func (e *Engine) Projects() ([]*models.Project, error) {
	var list []*models.Project
	err := e.store.View(func(r repository.Reader) error {
		var err error
		list, err = r.ListProjects()
		return err
	})
	return list, err
}

func (e *Engine) ProjectsByOwner(owner string) ([]*models.Project, error) {
	var list []*models.Project
	err := e.store.View(func(r repository.Reader) error {
		var err error
		list, err = r.ProjectsByOwner(owner)
		return err
	})
	return list, err
}

// ExpiredSubmissions lists submitted milestones whose validation window closed at or before now
func (e *Engine) ExpiredSubmissions(now time.Time) ([]SubmissionRef, error) {
	projects, err := e.Projects()
	if err != nil {
		return nil, err
	}
	var refs []SubmissionRef
	for _, p := range projects {
		for _, m := range p.Milestones {
			if m.Status != models.MilestoneSubmitted || m.SubmittedAt == nil {
				continue
			}
			if !now.Before(m.SubmittedAt.Add(e.params.ValidationWindow)) {
				refs = append(refs, SubmissionRef{ProjectID: p.ID, MilestoneID: m.ID})
			}
		}
	}
	return refs, nil
}
