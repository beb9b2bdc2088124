// Package jobs runs the ledger's scheduled maintenance.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/mcclellann/fundledger/pkg/ledger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Recomputer is the part of the ledger the recompute job drives.
type Recomputer interface {
	RecomputeAll() (ledger.RecomputeResult, error)
}

type RecomputeConfig struct {
	Schedule string // Standard five-field cron spec
	Location *time.Location
}

// Scheduler owns the cron runner for the recompute job.
type Scheduler struct {
	cron *cron.Cron
}

// StartRecompute schedules RunRecompute and starts the runner.
func StartRecompute(cfg RecomputeConfig, r Recomputer, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(cfg.Schedule, func() {
		RunRecompute(r, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to schedule recompute: %w", err)
	}

	c.Start()
	logger.Info("recompute scheduler started",
		zap.String("schedule", cfg.Schedule),
		zap.String("location", loc.String()),
	)
	return &Scheduler{cron: c}, nil
}

// Stop halts scheduling. The returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunRecompute reconciles every open loan and chit fund once.
func RunRecompute(r Recomputer, logger *zap.Logger) {
	start := time.Now()
	res, err := r.RecomputeAll()
	if err != nil {
		logger.Error("recompute failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	logger.Info("recompute completed",
		zap.Int("loans", res.Loans),
		zap.Int("chit_funds", res.ChitFunds),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
}
