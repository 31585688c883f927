package router_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arbiterhub/fabric/internal/config"
	"github.com/arbiterhub/fabric/internal/router"
)

// TestEpsilonMonotonicallyDecaysProperty verifies §4.7/§8's convergence
// property: the exploration rate ε(n) = clamp(ε_min + (ε_max-ε_min)*e^(-n/τ))
// is non-increasing in n and never leaves [ε_min, ε_max], for any
// configuration and any pair of decision counts.
func TestEpsilonMonotonicallyDecaysProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("epsilon is non-increasing in decision count and stays in bounds", prop.ForAll(
		func(n1, gap int) bool {
			cfg := config.DefaultRouterConfig()
			r := router.NewRouter(cfg)

			n2 := n1 + gap
			e1 := r.CurrentEpsilon(n1)
			e2 := r.CurrentEpsilon(n2)

			if e1 < cfg.EpsilonMin-1e-9 || e1 > cfg.EpsilonMax+1e-9 {
				return false
			}
			if e2 < cfg.EpsilonMin-1e-9 || e2 > cfg.EpsilonMax+1e-9 {
				return false
			}
			return e2 <= e1+1e-9
		},
		gen.IntRange(0, 1_000_000),
		gen.IntRange(0, 1_000_000),
	))

	properties.Property("epsilon converges to epsilon_min for large decision counts", prop.ForAll(
		func(tau float64) bool {
			cfg := config.DefaultRouterConfig()
			cfg.Tau = tau
			r := router.NewRouter(cfg)

			eps := r.CurrentEpsilon(int(tau*50) + 1000)
			return eps-cfg.EpsilonMin < 1e-6
		},
		gen.Float64Range(1, 500),
	))

	properties.TestingRun(t)
}
