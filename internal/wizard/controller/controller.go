// Package controller orchestrates the application wizard: step navigation,
// per-step validation, the resume flow, debounced autosave, and the
// four-stage submission pipeline. It is the only component with
// business-visible behavior; everything below it is a storage or transport
// adapter.
package controller

import (
	"context"
	"sort"
	"sync"
	"time"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/common/metrics"
	"advisory-apply/internal/models"
	"advisory-apply/internal/wizard/notify"
	"advisory-apply/internal/wizard/token"
)

// DraftStore is the remote draft store client surface the controller needs.
type DraftStore interface {
	Create(ctx context.Context, draft *models.ApplicationDraft) (string, error)
	ReadByToken(ctx context.Context, tok string) (*models.ApplicationDraft, error)
	UpdateByToken(ctx context.Context, tok string, form models.FormData, currentStep int, identity models.ApplicantIdentity) (string, error)
	Submit(ctx context.Context, id string) error
}

// MetadataCache is the local cache adapter surface.
type MetadataCache interface {
	Read(ctx context.Context, clientID string) (*models.LocalDraftMetadata, error)
	Write(ctx context.Context, clientID string, meta *models.LocalDraftMetadata) error
	Clear(ctx context.Context, clientID string) error
}

// StepValidator is the step schema registry surface.
type StepValidator interface {
	Validate(step int, data map[string]interface{}) error
	StepCount() int
}

// Notifier is the outbound notification gateway surface.
type Notifier interface {
	SubmissionReceived(ctx context.Context, sub notify.Submission) error
}

// SearchIndex mirrors drafts into the operator search index. Optional.
type SearchIndex interface {
	IndexDraft(ctx context.Context, d *models.ApplicationDraft) error
}

// Deps carries everything a session needs. Notifier and Search may be nil.
type Deps struct {
	Store    DraftStore
	Cache    MetadataCache
	Steps    StepValidator
	Tokens   *token.Service
	Notifier Notifier
	Search   SearchIndex
	Logger   logger.Logger

	// AutosaveDelay is the debounce window after the last navigation or
	// completion event. Zero disables autosave entirely (tests).
	AutosaveDelay time.Duration

	// RemoteTimeout bounds each remote operation issued outside a caller
	// context (the autosave timer path).
	RemoteTimeout time.Duration
}

// ResumeOffer is a staged resume prompt: the user chooses "continue" or
// "start fresh" before any in-memory state is replaced, because the local
// metadata may be stale relative to what they last did on another device.
type ResumeOffer struct {
	Draft          *models.ApplicationDraft `json:"-"`
	CurrentStep    int                      `json:"currentStep"`
	CompletedSteps []int                    `json:"completedSteps"`
	LastSaved      time.Time                `json:"lastSaved"`
	// Degraded marks an early-session draft that never reached the server:
	// only local progress markers exist, the form data is empty.
	Degraded bool `json:"degraded"`
}

// MountResult reports how the wizard came up.
type MountResult struct {
	Offer       *ResumeOffer `json:"offer,omitempty"`
	Resumed     bool         `json:"resumed"`
	CurrentStep int          `json:"currentStep"`
}

// Session is one drafting session. All operations are serialized by the
// mutex; no two remote operations for the same draft are ever in flight at
// once, matching the discrete-button-action model of the wizard UI.
type Session struct {
	mu sync.Mutex

	clientID string
	advisor  models.Advisor
	deps     Deps
	logger   logger.Logger

	draftID     string
	resumeToken string
	form        models.FormData
	currentStep int
	completed   map[int]bool
	status      models.DraftStatus
	pending     *ResumeOffer

	// Submission pipeline progress. The flags survive across Submit calls
	// so a retry re-enters at the failed stage instead of repeating
	// completed ones.
	submitting   bool
	draftEnsured bool
	finalSaved   bool
	lastResult   *SubmitResult

	autosaveTimer *time.Timer

	lastTouched time.Time
}

// NewSession creates an unmounted session for one client.
func NewSession(clientID string, advisor models.Advisor, deps Deps) *Session {
	if deps.RemoteTimeout <= 0 {
		deps.RemoteTimeout = 10 * time.Second
	}
	return &Session{
		clientID:    clientID,
		advisor:     advisor,
		deps:        deps,
		logger:      deps.Logger.WithFields(map[string]interface{}{"clientId": clientID}),
		form:        models.FormData{},
		currentStep: models.FirstStep,
		completed:   make(map[int]bool),
		status:      models.StatusDraft,
		lastTouched: time.Now(),
	}
}

// Mount runs the reconciliation state machine once per wizard mount.
func (s *Session) Mount(ctx context.Context, urlToken string) (*MountResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	// 1. An explicit resume link wins: hydrate fully, no prompt. The caller
	// strips the URL parameter after this returns so reloads don't
	// re-trigger the branch.
	if urlToken != "" {
		draft, err := s.deps.Store.ReadByToken(ctx, urlToken)
		if err == nil {
			s.hydrate(draft)
			s.writeMetadataLocked(ctx)
			return &MountResult{Resumed: true, CurrentStep: s.currentStep}, nil
		}
		s.logger.Warn("resume link did not resolve", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// 2. No local metadata: start fresh without prompting.
	meta, err := s.deps.Cache.Read(ctx, s.clientID)
	if err != nil {
		s.logger.Warn("local metadata unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		meta = nil
	}
	if meta == nil {
		if err := s.startFreshLocked(ctx); err != nil {
			return nil, err
		}
		return &MountResult{CurrentStep: s.currentStep}, nil
	}

	// 3. Local metadata with a token: stage the remote entity as a pending
	// offer rather than silently overwriting in-progress work.
	if meta.ResumeToken != "" {
		draft, err := s.deps.Store.ReadByToken(ctx, meta.ResumeToken)
		if err == nil {
			s.pending = &ResumeOffer{
				Draft:          draft,
				CurrentStep:    draft.CurrentStep,
				CompletedSteps: append([]int(nil), meta.CompletedSteps...),
				LastSaved:      meta.LastSaved,
			}
			metrics.ResumeOffers.WithLabelValues("offered").Inc()
			return &MountResult{Offer: s.pending, CurrentStep: models.FirstStep}, nil
		}
		if isNotFound(err) {
			// Orphaned metadata: the token never resolves again.
			_ = s.deps.Cache.Clear(ctx, s.clientID)
			if err := s.startFreshLocked(ctx); err != nil {
				return nil, err
			}
			return &MountResult{CurrentStep: s.currentStep}, nil
		}
		return nil, err
	}

	// 4. Early-session draft that never reached the server: offer local
	// progress only, with empty form data.
	s.pending = &ResumeOffer{
		CurrentStep:    meta.CurrentStep,
		CompletedSteps: append([]int(nil), meta.CompletedSteps...),
		LastSaved:      meta.LastSaved,
		Degraded:       true,
	}
	metrics.ResumeOffers.WithLabelValues("offered").Inc()
	return &MountResult{Offer: s.pending, CurrentStep: models.FirstStep}, nil
}

// AcceptResume replaces all in-memory state with the offered copy.
func (s *Session) AcceptResume(ctx context.Context) (*MountResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.pending == nil {
		return nil, ErrNoPendingResume
	}
	offer := s.pending
	s.pending = nil
	metrics.ResumeOffers.WithLabelValues("continue").Inc()

	if offer.Draft != nil {
		s.hydrate(offer.Draft)
	} else {
		// Degraded: only progress markers survive.
		s.form = models.FormData{}
		s.currentStep = clampStep(offer.CurrentStep, s.deps.Steps.StepCount())
		s.completed = make(map[int]bool)
		for _, step := range offer.CompletedSteps {
			s.completed[step] = true
		}
		tok, err := s.deps.Tokens.Locate(ctx, s.clientID)
		if err != nil || tok == "" {
			tok, err = s.deps.Tokens.Generate()
			if err != nil {
				return nil, err
			}
		}
		s.resumeToken = tok
		s.deps.Tokens.SetCurrent(tok)
	}
	s.writeMetadataLocked(ctx)
	return &MountResult{Resumed: true, CurrentStep: s.currentStep}, nil
}

// DeclineResume discards the offer and starts fresh. The remote entity is
// left untouched; it remains resumable later via its token.
func (s *Session) DeclineResume(ctx context.Context) (*MountResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.pending == nil {
		return nil, ErrNoPendingResume
	}
	s.pending = nil
	metrics.ResumeOffers.WithLabelValues("start_fresh").Inc()

	if err := s.deps.Cache.Clear(ctx, s.clientID); err != nil {
		s.logger.Warn("clear local metadata failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.deps.Tokens.Reset()
	if err := s.startFreshLocked(ctx); err != nil {
		return nil, err
	}
	return &MountResult{CurrentStep: s.currentStep}, nil
}

// hydrate replaces the in-memory draft with the remote entity.
func (s *Session) hydrate(d *models.ApplicationDraft) {
	s.draftID = d.ID
	s.resumeToken = d.ResumeToken
	s.form = d.FormData.Clone()
	s.currentStep = clampStep(d.CurrentStep, s.deps.Steps.StepCount())
	s.status = d.Status
	if d.AdvisorID != "" {
		s.advisor.ID = d.AdvisorID
		s.advisor.Name = d.AdvisorName
	}
	s.completed = make(map[int]bool)
	for step, data := range d.FormData {
		if len(data) > 0 {
			s.completed[step] = true
		}
	}
	s.deps.Tokens.SetCurrent(d.ResumeToken)
	s.draftEnsured = d.ID != ""
	s.finalSaved = false
}

// startFreshLocked resets the draft and pins a session token. The token is
// generated exactly once here and reused by every later save path.
func (s *Session) startFreshLocked(ctx context.Context) error {
	tok, err := s.deps.Tokens.Locate(ctx, s.clientID)
	if err != nil || tok == "" {
		tok, err = s.deps.Tokens.Generate()
		if err != nil {
			return err
		}
	}
	s.deps.Tokens.SetCurrent(tok)

	s.draftID = ""
	s.resumeToken = tok
	s.form = models.FormData{}
	s.currentStep = models.FirstStep
	s.completed = make(map[int]bool)
	s.status = models.StatusDraft
	s.draftEnsured = false
	s.finalSaved = false
	s.lastResult = nil
	return nil
}

// CurrentStep returns the step the wizard is on.
func (s *Session) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

// CompletedSteps returns the sorted completed step numbers.
func (s *Session) CompletedSteps() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedLocked()
}

func (s *Session) completedLocked() []int {
	steps := make([]int, 0, len(s.completed))
	for step := range s.completed {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

// StepData returns the validated data held for one step, or nil.
func (s *Session) StepData(step int) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form[step]
}

// Status returns the draft lifecycle state.
func (s *Session) Status() models.DraftStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastTouched supports session expiry in the manager.
func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTouched
}

func (s *Session) touch() {
	s.lastTouched = time.Now()
}

func clampStep(step, max int) int {
	if step < models.FirstStep {
		return models.FirstStep
	}
	if step > max {
		return max
	}
	return step
}
