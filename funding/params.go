package funding

import (
	"time"

	"github.com/holiman/uint256"
)

// Params are fixed per deployment
type Params struct {
	MinFundingGoal     *uint256.Int
	MaxDurationDays    int
	MinValidations     int
	PlatformFeePercent uint64
	MinReputation      uint64
	ValidationReward   uint64
	ValidationWindow   time.Duration // how long a submitted milestone waits for quorum
	PlatformAccount    string        // receives the platform fee leg of every release
}

func DefaultParams() Params {
	return Params{
		MinFundingGoal:     uint256.NewInt(10_000_000_000_000_000), // 0.01 of an 18-decimal unit
		MaxDurationDays:    365,
		MinValidations:     3,
		PlatformFeePercent: 1,
		MinReputation:      10,
		ValidationReward:   10,
		ValidationWindow:   30 * 24 * time.Hour,
		PlatformAccount:    "platform",
	}
}
