package router

import (
	"math"
	"math/rand"
	"sort"

	"github.com/arbiterhub/fabric/internal/config"
)

// DecisionRecord documents how a routing decision was reached, so the
// Intelligence Hub can surface it via api_get_router_decisions.
type DecisionRecord struct {
	Agent      string
	ClusterID  int
	Method     string // "performance", "exploration", "overall_fallback", "round_robin", "first_candidate"
	Confidence float64
	Epsilon    float64
}

// Router selects an agent for a task given the current cluster model and
// per-agent performance history, trading off exploitation of known-good
// agents against ε-greedy exploration that decays as more decisions are
// made.
type Router struct {
	cfg   config.RouterConfig
	rrNext int
}

// NewRouter builds a Router bound to the given configuration.
func NewRouter(cfg config.RouterConfig) *Router {
	return &Router{cfg: cfg}
}

// CurrentEpsilon reports the exploration rate Route would use for the
// next decision, given how many decisions have been made so far — used
// by status reporting without forcing an actual routing decision.
func (r *Router) CurrentEpsilon(decisionsSoFar int) float64 {
	return epsilon(decisionsSoFar, r.cfg)
}

// epsilon computes the current exploration rate per §4.7:
// ε = clamp(ε_min + (ε_max−ε_min)×exp(−n/τ), ε_min, ε_max)
// where n is the number of routing decisions made so far.
func epsilon(n int, cfg config.RouterConfig) float64 {
	eps := cfg.EpsilonMin + (cfg.EpsilonMax-cfg.EpsilonMin)*math.Exp(-float64(n)/cfg.Tau)
	if eps < cfg.EpsilonMin {
		eps = cfg.EpsilonMin
	}
	if eps > cfg.EpsilonMax {
		eps = cfg.EpsilonMax
	}
	return eps
}

// score blends success rate and (inverted, normalized) mean duration per
// §4.7: score = w_s×success_rate + w_d×(1−normalized_duration).
func score(s AgentStats, maxDuration float64, cfg config.RouterConfig) float64 {
	normalized := 0.0
	if maxDuration > 0 {
		normalized = s.MeanDuration / maxDuration
		if normalized > 1 {
			normalized = 1
		}
	}
	return cfg.WeightSuccess*s.SuccessRate + cfg.WeightDuration*(1-normalized)
}

// Route picks an agent from candidates for a task whose standardized
// feature vector is vec. decisionsSoFar is the running count of prior
// decisions, used to decay the exploration rate.
func (r *Router) Route(vec []float64, candidates []string, model ClusterModel, decisionsSoFar int) DecisionRecord {
	eps := epsilon(decisionsSoFar, r.cfg)
	if len(candidates) == 0 {
		return DecisionRecord{Method: "first_candidate", Epsilon: eps}
	}

	cluster := -1
	if len(model.Centroids) > 0 {
		cluster = model.NearestCluster(vec)
	}

	if rand.Float64() < eps {
		agent := candidates[rand.Intn(len(candidates))]
		return DecisionRecord{Agent: agent, ClusterID: cluster, Method: "exploration", Epsilon: eps}
	}

	if cluster >= 0 {
		if stats, ok := model.Stats[cluster]; ok {
			if agent, conf, ok := bestScoring(candidates, stats, r.cfg); ok {
				return DecisionRecord{Agent: agent, ClusterID: cluster, Method: "performance", Confidence: conf, Epsilon: eps}
			}
		}
	}

	// Fallback 1: overall (cross-cluster) performance, still gated on
	// min_samples so a single lucky/unlucky run can't dominate.
	if agent, conf, ok := bestScoring(candidates, model.Overall, r.cfg); ok {
		return DecisionRecord{Agent: agent, ClusterID: cluster, Method: "overall_fallback", Confidence: conf, Epsilon: eps}
	}

	// Fallback 2: round robin across candidates, so every agent still
	// accrues outcome data even with no performance history yet.
	agent := candidates[r.rrNext%len(candidates)]
	r.rrNext++
	return DecisionRecord{Agent: agent, ClusterID: cluster, Method: "round_robin", Epsilon: eps}
}

// bestScoring returns the highest-scoring candidate with at least
// min_samples recorded observations, along with a confidence equal to
// the score gap between the best and second-best candidate (§4.7).
// Ties are broken by higher sample count, then by agent name, per §4.7's
// tie-breaking rule.
func bestScoring(candidates []string, stats map[string]AgentStats, cfg config.RouterConfig) (string, float64, bool) {
	maxDuration := 0.0
	for _, s := range stats {
		if s.MeanDuration > maxDuration {
			maxDuration = s.MeanDuration
		}
	}

	type scored struct {
		agent string
		s     float64
		n     int
	}
	var eligible []scored
	for _, agent := range candidates {
		st, ok := stats[agent]
		if !ok || st.N < cfg.MinSamples {
			continue
		}
		eligible = append(eligible, scored{agent, score(st, maxDuration, cfg), st.N})
	}
	if len(eligible) == 0 {
		return "", 0, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].s != eligible[j].s {
			return eligible[i].s > eligible[j].s
		}
		if eligible[i].n != eligible[j].n {
			return eligible[i].n > eligible[j].n
		}
		return eligible[i].agent < eligible[j].agent
	})

	gap := 0.0
	if len(eligible) >= 2 {
		gap = eligible[0].s - eligible[1].s
	}
	return eligible[0].agent, gap, true
}
