package funding

import (
	"fmt"

	"github.com/holiman/uint256"

	"milestone-escrow/models"
	"milestone-escrow/payout"
)

type tranche struct {
	amount *uint256.Int // fee included
	fee    *uint256.Int
	owner  *uint256.Int
}

// computeTranche sizes the release for m against the current TotalFunded,
// capped at what the project still holds
func (e *Engine) computeTranche(p *models.Project, m *models.Milestone) *tranche {
	// the 512-bit intermediate keeps TotalFunded*pct exact
	amount, _ := new(uint256.Int).MulDivOverflow(p.TotalFunded, uint256.NewInt(m.FundingPercentage), hundred)
	if escrow := p.Escrowed(); amount.Gt(escrow) {
		amount = escrow
	}
	fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(e.params.PlatformFeePercent), hundred)
	return &tranche{
		amount: amount,
		fee:    fee,
		owner:  new(uint256.Int).Sub(amount, fee),
	}
}

// transfers builds the sink batch: fee first, then the owner's share. Zero legs are skipped.
func (t *tranche) transfers(owner, platform string, projectID uint64, milestoneID int) []payout.Transfer {
	var batch []payout.Transfer
	if !t.fee.IsZero() {
		batch = append(batch, payout.Transfer{
			To:     platform,
			Amount: t.fee.Clone(),
			Memo:   fmt.Sprintf("fee project %d milestone %d", projectID, milestoneID),
		})
	}
	if !t.owner.IsZero() {
		batch = append(batch, payout.Transfer{
			To:     owner,
			Amount: t.owner.Clone(),
			Memo:   fmt.Sprintf("release project %d milestone %d", projectID, milestoneID),
		})
	}
	return batch
}
