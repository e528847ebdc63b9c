// Package worker provides async claim screening off the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FraudEvaluator runs the fraud rule set over a stored claim.
// Satisfied by the workflow service.
type FraudEvaluator interface {
	EvaluateFraud(ctx context.Context, claimID string, supplied *domain.HistoricalContext) (*domain.FraudEvaluation, error)
}

// Worker screens newly submitted claims asynchronously: it subscribes to
// the submitted topic and runs fraud evaluation without holding up the
// submitting request.
type Worker struct {
	bus       domain.EventBus
	evaluator FraudEvaluator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, evaluator FraudEvaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the submitted-claim topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("claim screening worker started",
		"topic", domain.TopicClaimSubmitted,
	)

	return nil
}

// handleMessage screens one submitted claim.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.ClaimEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse claim event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	slog.Debug("screening submitted claim",
		"claim_id", event.ClaimID,
		"claim_number", event.ClaimNumber,
	)

	eval, err := w.evaluator.EvaluateFraud(ctx, event.ClaimID, nil)
	if err != nil {
		slog.Error("fraud screening failed",
			"claim_id", event.ClaimID,
			"error", err,
		)
		return err
	}

	slog.Info("claim screened",
		"claim_id", event.ClaimID,
		"new_flags", len(eval.Flags),
		"warnings", len(eval.Warnings),
		"rules_evaluated", eval.RulesEvaluated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("claim screening worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
