package duescan

import "time"

type PlannerConfig struct {
	OverdueDelay  time.Duration // default: 24 hours
	UpcomingDelay time.Duration // default: 7 days
	DeferDelay    time.Duration // default: 1 minute, used when the owner is rate limited

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		OverdueDelay:  24 * time.Hour,
		UpcomingDelay: 7 * 24 * time.Hour,
		DeferDelay:    time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

// Planner decides when the next reminder for a piece of equipment is due.
type Planner struct {
	cfg PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.OverdueDelay <= 0 {
		cfg.OverdueDelay = def.OverdueDelay
	}
	if cfg.UpcomingDelay <= 0 {
		cfg.UpcomingDelay = def.UpcomingDelay
	}
	if cfg.DeferDelay <= 0 {
		cfg.DeferDelay = def.DeferDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	return &Planner{cfg: cfg}
}

func (p *Planner) NextNoticeDelay(overdue bool) time.Duration {
	if overdue {
		return p.cfg.OverdueDelay
	}
	return p.cfg.UpcomingDelay
}

func (p *Planner) DeferDelay() time.Duration {
	return p.cfg.DeferDelay
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
