// Package pipeline runs the interpretation, perception and reasoning stages
// for one turn behind the Responder boundary.
package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/intent"
	"github.com/ashureev/eduvane/internal/perception"
	"github.com/ashureev/eduvane/internal/reasoning"
)

const (
	roleClarificationText     = "Please confirm your role once: Student or Teacher."
	roleClarificationFollowUp = "Once your role is set, I will tailor tone and feedback format."
)

// Responder is the reasoning boundary used by the gateway.
type Responder interface {
	Respond(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error)
	Classify(ctx context.Context, req domain.ReasoningRequest) (domain.IntentResult, error)
}

// Orchestrator is the in-process Responder.
type Orchestrator struct {
	classifier *intent.Classifier
	perception *perception.Stage
	engine     *reasoning.Engine
	memory     *Memory
	logger     *slog.Logger
}

// NewOrchestrator wires the stages together.
func NewOrchestrator(classifier *intent.Classifier, stage *perception.Stage, engine *reasoning.Engine, memory *Memory, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		classifier: classifier,
		perception: stage,
		engine:     engine,
		memory:     memory,
		logger:     logger,
	}
}

var _ Responder = (*Orchestrator)(nil)

// resolveRole prefers the request role and remembers it; otherwise it falls
// back to the role remembered for the session.
func (o *Orchestrator) resolveRole(ctx context.Context, req domain.ReasoningRequest) domain.Role {
	if req.Role.Known() {
		if err := o.memory.SetRole(ctx, req.UserID, req.SessionID, req.Role); err != nil {
			o.logger.Warn("pipeline: remember role failed", "user_id", req.UserID, "session_id", req.SessionID, "error", err)
		}
		return req.Role
	}
	role, err := o.memory.Role(ctx, req.UserID, req.SessionID)
	if err != nil {
		o.logger.Warn("pipeline: load role failed", "user_id", req.UserID, "session_id", req.SessionID, "error", err)
		return domain.RoleUnknown
	}
	return role
}

// Respond runs one turn. Stage failures degrade; only a cancelled context is returned as an error.
func (o *Orchestrator) Respond(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReasoningResponse{}, err
	}
	role := o.resolveRole(ctx, req)

	if role == domain.RoleUnknown {
		asked, err := o.memory.ClarificationAsked(ctx, req.UserID, req.SessionID)
		if err != nil {
			o.logger.Warn("pipeline: load clarification flag failed", "session_id", req.SessionID, "error", err)
			asked = true
		}
		if !asked {
			if err := o.memory.MarkClarificationAsked(ctx, req.UserID, req.SessionID); err != nil {
				o.logger.Warn("pipeline: mark clarification failed", "session_id", req.SessionID, "error", err)
			}
			return domain.ReasoningResponse{
				SessionID:          req.SessionID,
				Intent:             domain.IntentConversational,
				Role:               role,
				ResponseText:       roleClarificationText,
				FollowUpSuggestion: roleClarificationFollowUp,
			}, nil
		}
	}

	hasUploads := len(req.Uploads) > 0
	rec := o.classifier.Classify(ctx, req.Message, hasUploads)

	var signal perception.Signal
	if hasUploads {
		signal = o.perception.Perceive(ctx, req.Uploads)
	}

	in := reasoning.Input{
		Record:  rec,
		Role:    role,
		Message: req.Message,
		Signal:  signal,
		Uploads: req.Uploads,
		History: req.History,
	}

	switch rec.Action {
	case domain.ActionAnalyze:
		in.Gaps = reasoning.ExtractLearningGaps(strings.TrimSpace(req.Message + " " + signal.Text))
		if err := o.memory.RememberGaps(ctx, req.UserID, req.SessionID, in.Gaps); err != nil {
			o.logger.Warn("pipeline: remember gaps failed", "session_id", req.SessionID, "error", err)
		}
	case domain.ActionPractice:
		if rec.Topic == "" {
			gaps, err := o.memory.Gaps(ctx, req.UserID, req.SessionID)
			if err != nil {
				o.logger.Warn("pipeline: load gaps failed", "session_id", req.SessionID, "error", err)
			}
			in.Gaps = gaps
		}
	}

	out := o.engine.Reason(ctx, in)
	o.logger.Info("pipeline: turn reasoned",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"action", rec.Action,
		"role", role,
		"degraded", out.Degraded,
		"signal_confidence", signal.Confidence,
	)

	return domain.ReasoningResponse{
		SessionID:           req.SessionID,
		Intent:              rec.Action.BoundaryIntent(),
		Role:                role,
		ResponseText:        out.NarrativeText,
		FollowUpSuggestion:  out.FollowUpSuggestion,
		GeneratedQuestions:  out.GeneratedQuestions,
		HandwritingFeedback: out.HandwritingFeedback,
		Score:               out.Score,
		GrowthSteps:         out.GrowthSteps,
	}, nil
}

// Classify interprets a turn without reasoning over it.
func (o *Orchestrator) Classify(ctx context.Context, req domain.ReasoningRequest) (domain.IntentResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.IntentResult{}, err
	}
	role := o.resolveRole(ctx, req)
	rec := o.classifier.Classify(ctx, req.Message, len(req.Uploads) > 0)
	return domain.IntentResult{
		Intent: rec.Action.BoundaryIntent(),
		Role:   role,
		Record: rec,
	}, nil
}
