package controller

import (
	"context"
	"time"

	"advisory-apply/internal/common/metrics"
	"advisory-apply/internal/models"
	"advisory-apply/internal/wizard/classify"
	"advisory-apply/internal/wizard/notify"
	"advisory-apply/internal/wizard/store"
)

// SubmitResult reports a completed submission.
type SubmitResult struct {
	ApplicationID string `json:"applicationId"`
	Confirmed     bool   `json:"confirmed"`
}

// Submit drives the submission sequence:
//
//	ENSURE_DRAFT -> SAVE_FINAL -> SUBMIT -> NOTIFY (best-effort) -> DONE
//
// Each stage has its own failure handling; the returned Details carry the
// displayed error and whether retry is offered. Retry means calling Submit
// again: stage progress is kept on the session, so a retry re-enters at the
// failed stage. ENSURE_DRAFT and SAVE_FINAL are never repeated once they
// succeeded; both are idempotent for a fixed (token, id) pair, repeating
// them would only be wasted work.
//
// Autosave is disabled for the whole in-flight submission so a stale
// autosave can never interleave with the final write; the pipeline computes
// its own fresh snapshot instead of relying on the last autosave having
// completed.
func (s *Session) Submit(ctx context.Context) (*SubmitResult, *classify.Details) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.status == models.StatusSubmitted {
		// The business event already happened; resurface the confirmation.
		// Sessions hydrated from an already-submitted entity never produced
		// a result of their own, so synthesize one.
		if s.lastResult == nil {
			s.lastResult = &SubmitResult{ApplicationID: s.draftID, Confirmed: true}
		}
		return s.lastResult, nil
	}

	started := time.Now()
	s.submitting = true
	s.cancelAutosaveLocked()
	defer func() { s.submitting = false }()

	snapshot := s.snapshotLocked()
	snapshot.CurrentStep = s.deps.Steps.StepCount()

	// ENSURE_DRAFT: make sure a remote entity exists. On failure the whole
	// pipeline restarts from here next time.
	if !s.draftEnsured {
		if s.draftID == "" {
			id, err := s.deps.Store.Create(ctx, snapshot)
			if err != nil {
				return nil, s.failStage(classify.StageSave, err)
			}
			s.draftID = id
		}
		s.draftEnsured = true
	}

	// SAVE_FINAL: persist the complete final snapshot under the token.
	if !s.finalSaved {
		_, err := s.deps.Store.UpdateByToken(ctx, s.resumeToken, snapshot.FormData, snapshot.CurrentStep, snapshot.Identity())
		if err != nil {
			return nil, s.failStage(classify.StageSave, err)
		}
		s.finalSaved = true
		s.currentStep = snapshot.CurrentStep
	}

	// SUBMIT: the terminal status transition. A retry re-enters here only.
	if err := s.deps.Store.Submit(ctx, s.draftID); err != nil {
		return nil, s.failStage(classify.StageSubmit, err)
	}
	s.status = models.StatusSubmitted

	// NOTIFY: fire-and-forget. The business-critical event has already
	// succeeded, so a failure here is logged and swallowed.
	if s.deps.Notifier != nil {
		sub := notify.Submission{
			ApplicationID: s.draftID,
			Identity:      snapshot.Identity(),
			Advisor:       s.advisor,
			FormData:      snapshot.FormData,
		}
		if err := s.deps.Notifier.SubmissionReceived(ctx, sub); err != nil {
			metrics.StageFailures.WithLabelValues(string(classify.StageEmail), "notify").Inc()
			s.logger.Warn("submission notification failed", map[string]interface{}{
				"applicationId": s.draftID,
				"error":         err.Error(),
			})
		}
	}

	// DONE: the local slot is cleared only after confirmed submission.
	snapshot.Status = models.StatusSubmitted
	s.indexLocked(ctx, snapshot)
	if err := s.deps.Cache.Clear(ctx, s.clientID); err != nil {
		s.logger.Warn("clear local metadata failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.deps.Tokens.Reset()

	metrics.Submissions.WithLabelValues("ok").Inc()
	metrics.SubmitDuration.Observe(time.Since(started).Seconds())
	s.logger.Info("application submitted", map[string]interface{}{
		"applicationId": s.draftID,
	})

	s.lastResult = &SubmitResult{ApplicationID: s.draftID, Confirmed: true}
	return s.lastResult, nil
}

func stageKind(err error) string {
	return store.KindOf(err).String()
}

func (s *Session) failStage(stage classify.Stage, err error) *classify.Details {
	details := classify.Classify(err, stage)
	metrics.Submissions.WithLabelValues("error").Inc()
	metrics.StageFailures.WithLabelValues(string(stage), stageKind(err)).Inc()
	s.logger.Error("submission stage failed", map[string]interface{}{
		"stage": string(stage),
		"error": err.Error(),
	})
	return &details
}
