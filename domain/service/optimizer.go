package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"growth-automation/domain/model"
)

// OptimizerConfig holds the controller thresholds.
type OptimizerConfig struct {
	LearningSpendThreshold float64
	LearningDays           int
	MaxIncrease            float64
	MinDailyBudget         float64
}

func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		LearningSpendThreshold: 50,
		LearningDays:           3,
		MaxIncrease:            100,
		MinDailyBudget:         10,
	}
}

const (
	excellentROAS = 3.0
	goodROAS      = 2.0
	breakEvenROAS = 1.0
	poorROAS      = 0.5
	minWeight     = 0.1
)

// Decide evaluates one campaign against its latest performance window.
// Bands are checked from the highest down so a value on a boundary lands in the higher band.
func Decide(c *model.Campaign, perf *model.PerformanceWindow, cfg OptimizerConfig, now time.Time) model.OptimizationDecision {
	spend, revenue := c.Spent, c.Revenue
	if perf != nil {
		spend, revenue = perf.Spend, perf.Revenue
	}
	roas := 0.0
	if spend > 0 {
		roas = revenue / spend
	}
	current := c.DailyBudget
	d := model.OptimizationDecision{
		CampaignID:     c.ID,
		PreviousBudget: roundCents(current),
		NewBudget:      roundCents(current),
		ROAS:           roundRatio(roas),
		CreatedAt:      now.UTC(),
	}

	days := c.DaysRunning(now)
	if spend < cfg.LearningSpendThreshold || days < cfg.LearningDays {
		d.Action = model.ActionMaintain
		d.Confidence = 0.5
		d.Reason = fmt.Sprintf("learning phase: spend %.2f of %.2f, %d of %d days", spend, cfg.LearningSpendThreshold, days, cfg.LearningDays)
		return d
	}

	switch {
	case roas >= excellentROAS:
		step := math.Min(current*0.2, cfg.MaxIncrease)
		d.Action = model.ActionIncrease
		d.NewBudget = roundCents(current + step)
		d.Confidence = 0.9
		d.Reason = fmt.Sprintf("excellent roas %.2f: increase by %.2f", roas, step)
	case roas >= goodROAS:
		d.Action = model.ActionIncrease
		d.NewBudget = roundCents(current * 1.1)
		d.Confidence = 0.75
		d.Reason = fmt.Sprintf("good roas %.2f: increase by 10%%", roas)
	case roas >= breakEvenROAS:
		d.Action = model.ActionMaintain
		d.Confidence = 0.7
		d.Reason = fmt.Sprintf("break-even roas %.2f: maintain", roas)
	case roas >= poorROAS:
		d.Action = model.ActionDecrease
		d.NewBudget = roundCents(current * 0.8)
		d.Confidence = 0.7
		d.Reason = fmt.Sprintf("weak roas %.2f: decrease by 20%%", roas)
	default:
		d.Action = model.ActionPause
		d.Confidence = 0.85
		d.Reason = fmt.Sprintf("roas %.2f below %.2f: pause", roas, poorROAS)
	}
	return d
}

// Allocation is one input row of AllocateAcrossCampaigns.
type Allocation struct {
	CampaignID string
	ROAS       float64
	Status     model.CampaignStatus
}

// AllocateAcrossCampaigns splits total proportionally to max(roas, 0.1) over active campaigns.
// Any share under floor is raised to floor and the remainder is re-split over the others.
// Non-active campaigns get 0. When the total cannot cover the floor for everyone it is split evenly.
func AllocateAcrossCampaigns(total float64, campaigns []Allocation, floor float64) map[string]float64 {
	out := make(map[string]float64, len(campaigns))
	weights := make(map[string]float64)
	var active []string
	for _, c := range campaigns {
		out[c.CampaignID] = 0
		if c.Status != model.CampaignActive {
			continue
		}
		active = append(active, c.CampaignID)
		weights[c.CampaignID] = math.Max(c.ROAS, minWeight)
	}
	if len(active) == 0 || total <= 0 {
		return out
	}
	// stable order for the residue step
	sort.SliceStable(active, func(i, j int) bool {
		if weights[active[i]] == weights[active[j]] {
			return active[i] < active[j]
		}
		return weights[active[i]] > weights[active[j]]
	})

	if total < floor*float64(len(active)) {
		share := total / float64(len(active))
		for _, id := range active {
			out[id] = share
		}
		return settleCents(out, active, total)
	}

	fixed := make(map[string]bool)
	remaining := total
	for {
		var weightSum float64
		for _, id := range active {
			if !fixed[id] {
				weightSum += weights[id]
			}
		}
		clamped := false
		pool := remaining
		for _, id := range active {
			if fixed[id] {
				continue
			}
			share := pool * weights[id] / weightSum
			if share < floor {
				fixed[id] = true
				out[id] = floor
				remaining -= floor
				clamped = true
			}
		}
		if !clamped {
			for _, id := range active {
				if !fixed[id] {
					out[id] = remaining * weights[id] / weightSum
				}
			}
			break
		}
	}
	return settleCents(out, active, total)
}

// settleCents rounds every share to cents and puts the rounding residue on the heaviest campaign.
func settleCents(out map[string]float64, ordered []string, total float64) map[string]float64 {
	var sum float64
	for _, id := range ordered {
		out[id] = roundCents(out[id])
		sum += out[id]
	}
	if residue := roundCents(total - sum); residue != 0 {
		out[ordered[0]] = roundCents(out[ordered[0]] + residue)
	}
	return out
}

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }

func roundRatio(v float64) float64 { return math.Round(v*10000) / 10000 }
