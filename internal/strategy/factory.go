package strategy

import (
	"fmt"
	"time"

	"github.com/shipshift/orchestrator/internal/domain"
	"github.com/shipshift/orchestrator/internal/stabilize"
)

// Type identifies a rollout strategy
type Type string

const (
	TypeDirect  Type = "direct"
	TypeRolling Type = "rolling"
	TypeCanary  Type = "canary"
)

// Spec is the user-provided strategy specification
type Spec struct {
	Type Type `json:"type"`

	// Rolling
	MaxConcurrent    int           `json:"max_concurrent,omitempty"`
	HealthCheckDelay time.Duration `json:"health_check_delay,omitempty"`

	// Canary
	InitialPercentage   int           `json:"initial_percentage,omitempty"`
	IncrementPercentage int           `json:"increment_percentage,omitempty"`
	WaitDuration        time.Duration `json:"wait_duration,omitempty"`

	// Adaptive waiting for rolling and canary
	Adaptive      bool             `json:"adaptive,omitempty"`
	Stabilization stabilize.Config `json:"stabilization,omitempty"`
}

// Deps are the shared collaborators strategies may consume
type Deps struct {
	Provider   domain.MetricsProvider
	Stabilizer *stabilize.Service
}

// New instantiates the strategy described by spec, filling in defaults
// for unset tuning parameters
func New(spec Spec, deps Deps) (Strategy, error) {
	switch spec.Type {
	case TypeDirect:
		return NewDirect(), nil

	case TypeRolling:
		maxConcurrent := spec.MaxConcurrent
		if maxConcurrent < 1 {
			maxConcurrent = 1
		}
		if spec.Adaptive {
			if deps.Provider == nil || deps.Stabilizer == nil {
				return nil, fmt.Errorf("adaptive rolling requires a metrics provider and stabilization service")
			}
			cfg := spec.Stabilization
			if cfg.PollingInterval == 0 {
				cfg = stabilize.DefaultConfig()
			}
			return NewAdaptiveRolling(maxConcurrent, deps.Provider, deps.Stabilizer, cfg), nil
		}
		delay := spec.HealthCheckDelay
		if delay == 0 {
			delay = 10 * time.Second
		}
		return NewRolling(maxConcurrent, delay), nil

	case TypeCanary:
		if deps.Provider == nil {
			return nil, fmt.Errorf("canary requires a metrics provider")
		}
		initial := spec.InitialPercentage
		if initial < 1 {
			initial = 10
		}
		increment := spec.IncrementPercentage
		if increment < 1 {
			increment = 25
		}
		if spec.Adaptive {
			if deps.Stabilizer == nil {
				return nil, fmt.Errorf("adaptive canary requires a stabilization service")
			}
			cfg := spec.Stabilization
			if cfg.PollingInterval == 0 {
				cfg = stabilize.DefaultConfig()
			}
			return NewAdaptiveCanary(initial, increment, deps.Provider, deps.Stabilizer, cfg), nil
		}
		wait := spec.WaitDuration
		if wait == 0 {
			wait = 30 * time.Second
		}
		return NewCanary(initial, increment, wait, deps.Provider), nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, spec.Type)
	}
}
