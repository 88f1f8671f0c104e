package deposit

import "github.com/Veraticus/notiledger/internal/model"

// DefaultMinSamples is the number of applications before a pattern can be
// deactivated for failing.
const DefaultMinSamples = 5

// Policy decides when a failing pattern is turned off.
type Policy struct {
	MinSamples int
}

// DefaultPolicy returns the deactivation policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{MinSamples: DefaultMinSamples}
}

// ShouldDeactivate reports whether an active pattern has failed more often
// than it succeeded over at least MinSamples applications.
func (p Policy) ShouldDeactivate(pattern *model.LearnedDepositPattern) bool {
	if pattern == nil || !pattern.IsActive {
		return false
	}
	minSamples := p.MinSamples
	if minSamples < 1 {
		minSamples = DefaultMinSamples
	}
	return pattern.FailCount > pattern.SuccessCount && pattern.Applications() >= minSamples
}
