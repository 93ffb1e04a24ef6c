package neural

import (
	"math"

	"github.com/astatos/coherence/internal/domain"
	"github.com/astatos/coherence/internal/events"
)

// Rule names one of the synaptic plasticity update laws.
type Rule string

const (
	RuleHebbian Rule = "hebbian"
	RuleSTDP    Rule = "stdp"
	RuleBCM     Rule = "bcm"
	RuleOja     Rule = "oja"
)

// Spike-timing window parameters, in ticks.
const (
	stdpAPlus    = 0.1
	stdpAMinus   = 0.12
	stdpTauPlus  = 20.0
	stdpTauMinus = 20.0
)

// ApplyPlasticity runs one rule over the synapse pre→post. The updated
// weight is always clamped to [0,1]; a BCM update past the plasticity
// threshold leaves a late-phase tag for later reward consumption.
func (e *Engine) ApplyPlasticity(rule Rule, pre, post domain.EntityID) error {
	switch rule {
	case RuleHebbian, RuleSTDP, RuleBCM, RuleOja:
	default:
		return ErrUnknownRule
	}

	e.mu.Lock()
	var target *Synapse
	for _, s := range e.synapses {
		if s.Pre == pre && s.Post == post {
			target = s
			break
		}
	}
	if target == nil {
		e.mu.Unlock()
		return domain.ErrUnknownEntity
	}
	npre, okPre := e.neurons[pre]
	npost, okPost := e.neurons[post]
	if !okPre || !okPost {
		e.mu.Unlock()
		return domain.ErrUnknownEntity
	}

	preAct := clampWeight(npre.Activity)
	postAct := clampWeight(npost.Activity)

	var delta float64
	switch rule {
	case RuleHebbian:
		delta = e.cfg.LearningRate * preAct * postAct
	case RuleSTDP:
		delta = stdpDelta(npre.LastFired, npost.LastFired)
	case RuleBCM:
		theta := e.avgActivityLocked() * e.cfg.BCMThreshold
		delta = e.cfg.LearningRate * postAct * (postAct - theta) * preAct
		if math.Abs(delta) > e.cfg.PlasticityThreshold {
			kind := domain.TagLateLTP
			if delta < 0 {
				kind = domain.TagLateLTD
			}
			target.Tag = &Tag{Kind: kind, Strength: 1.0}
		}
	case RuleOja:
		delta = e.cfg.LearningRate * (preAct*postAct - target.Weight*postAct*postAct)
	}

	old := target.Weight
	target.Weight = clampWeight(target.Weight + delta)
	change := &events.WeightChangedData{
		Pre:       string(pre),
		Post:      string(post),
		OldWeight: old,
		NewWeight: target.Weight,
		Rule:      string(rule),
	}
	e.mu.Unlock()

	if change.NewWeight != change.OldWeight {
		e.events.Emit(events.WeightChanged, "neural", change)
	}
	return nil
}

// applySTDPLocked is the online timing update run at fire time. Caller
// holds e.mu; the returned change is emitted after unlocking.
func (e *Engine) applySTDPLocked(s *Synapse, tPre, tPost uint64) *events.WeightChangedData {
	delta := stdpDelta(tPre, tPost)
	old := s.Weight
	s.Weight = clampWeight(s.Weight + delta)
	if s.Weight == old {
		return nil
	}
	return &events.WeightChangedData{
		Pre:       string(s.Pre),
		Post:      string(s.Post),
		OldWeight: old,
		NewWeight: s.Weight,
		Rule:      string(RuleSTDP),
	}
}

// stdpDelta is the asymmetric exponential timing window: pre before
// post potentiates, post before pre depresses. Neurons that never fired
// contribute nothing.
func stdpDelta(tPre, tPost uint64) float64 {
	if tPre == 0 || tPost == 0 {
		return 0
	}
	dt := float64(tPost) - float64(tPre)
	if dt > 0 {
		return stdpAPlus * math.Exp(-dt/stdpTauPlus)
	}
	return -stdpAMinus * math.Exp(dt/stdpTauMinus)
}
