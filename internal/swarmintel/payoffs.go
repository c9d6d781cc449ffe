// ABOUTME: Payoff definitions and deadline-decayed reward calculation. See spec.md §4.G Payoffs.
package swarmintel

import (
	"github.com/fleetforge/fleetd/internal/model"
)

// Define upserts a (task, type) reward rule, per spec.md §4.G
// Payoffs.define.
func (s *Service) Define(taskID, payoffType string, baseValue, multiplier float64, deadline *int64, decayRate float64) (*model.PayoffDefinition, error) {
	p := &model.PayoffDefinition{
		TaskID:     taskID,
		Type:       payoffType,
		BaseValue:  baseValue,
		Multiplier: multiplier,
		Deadline:   deadline,
		DecayRate:  decayRate,
	}
	if err := s.store.UpsertPayoff(p); err != nil {
		return nil, err
	}
	return p, nil
}

const payoffTypePenalty = "penalty"

// msPerHour is the number of milliseconds in an hour. Dividing by it keeps
// whole-hour durations exact.
const msPerHour = 60 * 60 * 1000

// Calculate sums baseValue*multiplier across every type defined for
// taskID as of now, per spec.md §4.G Payoffs.calculate. Types with a
// deadline apply max(0, 1-(overdueHours*decayRate)) once now is past the
// deadline; type "penalty" is subtracted rather than added.
func (s *Service) Calculate(taskID string, now int64) (float64, error) {
	defs, err := s.store.ListPayoffsForTask(taskID)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, p := range defs {
		value := p.BaseValue * p.Multiplier
		if p.Deadline != nil && now > *p.Deadline {
			overdueHours := float64(now-*p.Deadline) / msPerHour
			decay := 1 - overdueHours*p.DecayRate
			if decay < 0 {
				decay = 0
			}
			value *= decay
		}
		if p.Type == payoffTypePenalty {
			total -= value
		} else {
			total += value
		}
	}
	return total, nil
}
