package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"advisory-apply/internal/common/metrics"
	"advisory-apply/internal/models"
	"advisory-apply/internal/wizard/store"
)

var (
	ErrNoPendingResume  = errors.New("no pending resume offer")
	ErrAlreadySubmitted = errors.New("application already submitted")
	ErrResumePending    = errors.New("resume offer must be accepted or declined first")
)

// CompleteStep validates one step's data, merges it into the draft, marks
// the step completed and advances. The completed set only grows; navigating
// backward never removes a previously completed step.
func (s *Session) CompleteStep(ctx context.Context, step int, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.status == models.StatusSubmitted {
		return ErrAlreadySubmitted
	}
	if s.pending != nil {
		return ErrResumePending
	}
	if step < models.FirstStep || step > s.deps.Steps.StepCount() {
		return fmt.Errorf("step %d out of range", step)
	}

	if err := s.deps.Steps.Validate(step, data); err != nil {
		return err
	}

	s.form[step] = data
	s.completed[step] = true
	if step < s.deps.Steps.StepCount() {
		s.currentStep = step + 1
	} else {
		s.currentStep = step
	}

	s.scheduleAutosaveLocked()
	return nil
}

// GoBack moves the wizard to an earlier step without touching completed
// steps or their data.
func (s *Session) GoBack(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.status == models.StatusSubmitted {
		return ErrAlreadySubmitted
	}
	if step < models.FirstStep || step >= s.currentStep {
		return fmt.Errorf("cannot go back to step %d from step %d", step, s.currentStep)
	}
	s.currentStep = step
	s.scheduleAutosaveLocked()
	return nil
}

// scheduleAutosaveLocked (re)arms the debounce timer: the save fires after
// the configured quiet period following the last navigation or completion
// event, and never while a submission is in flight.
func (s *Session) scheduleAutosaveLocked() {
	if s.deps.AutosaveDelay <= 0 || s.submitting || s.status == models.StatusSubmitted {
		return
	}
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
	}
	s.autosaveTimer = time.AfterFunc(s.deps.AutosaveDelay, s.autosaveFire)
}

func (s *Session) cancelAutosaveLocked() {
	if s.autosaveTimer != nil {
		s.autosaveTimer.Stop()
		s.autosaveTimer = nil
	}
}

func (s *Session) autosaveFire() {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.RemoteTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting || s.status == models.StatusSubmitted {
		return
	}
	s.saveLocked(ctx, "autosave")
}

// Flush saves synchronously, used on explicit save actions and shutdown.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.submitting || s.status == models.StatusSubmitted {
		return nil
	}
	return s.saveLocked(ctx, "explicit")
}

// saveLocked writes the full current snapshot to the remote store and the
// local cache. The payload is always a full snapshot, never a delta, so a
// superseded save can only lose to a later full write, not corrupt state.
func (s *Session) saveLocked(ctx context.Context, path string) error {
	snapshot := s.snapshotLocked()

	var err error
	if s.draftID == "" {
		var id string
		id, err = s.deps.Store.Create(ctx, snapshot)
		if err == nil {
			s.draftID = id
		}
	} else {
		_, err = s.deps.Store.UpdateByToken(ctx, s.resumeToken, snapshot.FormData, snapshot.CurrentStep, snapshot.Identity())
	}

	if err != nil {
		metrics.DraftSaves.WithLabelValues(path, "error").Inc()
		s.logger.Warn("draft save failed", map[string]interface{}{
			"path":  path,
			"kind":  store.KindOf(err).String(),
			"error": err.Error(),
		})
		return err
	}
	metrics.DraftSaves.WithLabelValues(path, "ok").Inc()

	s.writeMetadataLocked(ctx)
	s.indexLocked(ctx, snapshot)
	return nil
}

// snapshotLocked builds a detached copy of the draft with the identity
// projections recomputed from the current form data.
func (s *Session) snapshotLocked() *models.ApplicationDraft {
	identity := models.IdentityFromForm(s.form)
	return &models.ApplicationDraft{
		ID:             s.draftID,
		ResumeToken:    s.resumeToken,
		FormData:       s.form.Clone(),
		CurrentStep:    s.currentStep,
		Status:         s.status,
		ApplicantName:  identity.Name,
		ApplicantEmail: identity.Email,
		ApplicantPhone: identity.Phone,
		AdvisorID:      s.advisor.ID,
		AdvisorName:    s.advisor.Name,
		UpdatedAt:      time.Now().UTC(),
	}
}

// writeMetadataLocked refreshes the local cache slot. Failures are logged
// only; losing the local copy degrades resume, it never breaks the wizard.
func (s *Session) writeMetadataLocked(ctx context.Context) {
	meta := &models.LocalDraftMetadata{
		DraftID:        s.draftID,
		ResumeToken:    s.resumeToken,
		CurrentStep:    s.currentStep,
		CompletedSteps: s.completedLocked(),
		LastSaved:      time.Now().UTC(),
		AdvisorID:      s.advisor.ID,
		AdvisorName:    s.advisor.Name,
	}
	if err := s.deps.Cache.Write(ctx, s.clientID, meta); err != nil {
		s.logger.Warn("local metadata write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// indexLocked mirrors the draft into the operator search index, best-effort.
func (s *Session) indexLocked(ctx context.Context, snapshot *models.ApplicationDraft) {
	if s.deps.Search == nil || s.draftID == "" {
		return
	}
	snapshot.ID = s.draftID
	if err := s.deps.Search.IndexDraft(ctx, snapshot); err != nil {
		s.logger.Warn("draft search index failed", map[string]interface{}{
			"draftId": s.draftID,
			"error":   err.Error(),
		})
	}
}

func isNotFound(err error) bool {
	return store.KindOf(err) == store.KindNotFound
}
