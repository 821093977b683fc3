// Package store is the remote draft store client. It owns every SQL touch of
// the draft_applications table and the two token-scoped procedures, and
// translates raw driver failures into the typed Kind taxonomy.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

// Token-scoped access goes exclusively through these two procedures. The
// direct insert below is used only for first-time creation so the insert path
// never carries broad row-level update access.
const (
	readByTokenQuery = `SELECT id, resume_token, form_data, current_step, status,
		applicant_name, applicant_email, applicant_phone,
		advisor_id, advisor_name, updated_at
		FROM get_draft_application_by_token($1)`

	updateByTokenQuery = `SELECT update_draft_application_by_token($1, $2, $3, $4, $5, $6)`

	createQuery = `INSERT INTO draft_applications (
		resume_token, form_data, current_step, status,
		applicant_name, applicant_email, applicant_phone,
		advisor_id, advisor_name, updated_at
	) VALUES ($1, $2, $3, 'draft', $4, $5, $6, $7, $8, NOW())
	RETURNING id`

	submitQuery = `UPDATE draft_applications
		SET status = 'submitted', updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`

	statusQuery = `SELECT status FROM draft_applications WHERE id = $1`
)

// Client performs create/read/update/submit against the remote draft store.
// All operations are idempotent or safely retryable for a fixed
// (resumeToken, id) pair.
type Client struct {
	db     *sql.DB
	logger logger.Logger
}

func NewClient(db *sql.DB, log logger.Logger) *Client {
	return &Client{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "draft-store"}),
	}
}

// Create inserts a new draft entity and returns the store-assigned id. The
// resume token is the one the caller generated; the store never mints one.
// A constraint violation surfaces as KindConflict, never a silent update.
func (c *Client) Create(ctx context.Context, draft *models.ApplicationDraft) (string, error) {
	formJSON, err := marshalForm(draft.FormData)
	if err != nil {
		return "", newError("create", KindInternal, err)
	}

	var id string
	err = c.db.QueryRowContext(ctx, createQuery,
		draft.ResumeToken,
		string(formJSON), // pq would send []byte as bytea, not jsonb
		draft.CurrentStep,
		draft.ApplicantName,
		draft.ApplicantEmail,
		draft.ApplicantPhone,
		draft.AdvisorID,
		draft.AdvisorName,
	).Scan(&id)
	if err != nil {
		return "", wrap("create", err)
	}

	c.logger.Info("draft created", map[string]interface{}{
		"draftId":     id,
		"currentStep": draft.CurrentStep,
	})
	return id, nil
}

// ReadByToken returns the single draft matching the token, or KindNotFound.
// The token is the sole authorization boundary; no other draft is ever
// reachable through this call.
func (c *Client) ReadByToken(ctx context.Context, token string) (*models.ApplicationDraft, error) {
	row := c.db.QueryRowContext(ctx, readByTokenQuery, token)

	var (
		d         models.ApplicationDraft
		formJSON  []byte
		status    string
		advisorID sql.NullString
		advisor   sql.NullString
	)
	err := row.Scan(&d.ID, &d.ResumeToken, &formJSON, &d.CurrentStep, &status,
		&d.ApplicantName, &d.ApplicantEmail, &d.ApplicantPhone,
		&advisorID, &advisor, &d.UpdatedAt)
	if err != nil {
		return nil, wrap("readByToken", err)
	}

	d.Status = models.DraftStatus(status)
	d.AdvisorID = advisorID.String
	d.AdvisorName = advisor.String
	d.FormData, err = unmarshalForm(formJSON)
	if err != nil {
		return nil, newError("readByToken", KindInternal, err)
	}
	return &d, nil
}

// UpdateByToken upserts the one draft matching the token with a full
// snapshot and returns its id, or KindNotFound when no draft matches. Safe
// to call repeatedly with the same arguments.
func (c *Client) UpdateByToken(ctx context.Context, token string, form models.FormData, currentStep int, identity models.ApplicantIdentity) (string, error) {
	formJSON, err := marshalForm(form)
	if err != nil {
		return "", newError("updateByToken", KindInternal, err)
	}

	var id sql.NullString
	err = c.db.QueryRowContext(ctx, updateByTokenQuery,
		token,
		string(formJSON),
		currentStep,
		identity.Name,
		identity.Email,
		identity.Phone,
	).Scan(&id)
	if err != nil {
		return "", wrap("updateByToken", err)
	}
	if !id.Valid || id.String == "" {
		return "", newError("updateByToken", KindNotFound,
			fmt.Errorf("no draft matches resume token"))
	}

	return id.String, nil
}

// Submit transitions the draft to submitted. It rejects, rather than
// silently succeeds, when the entity is missing or already submitted, so a
// duplicate call can never trigger downstream processing twice.
func (c *Client) Submit(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, submitQuery, id)
	if err != nil {
		return wrap("submit", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrap("submit", err)
	}
	if affected > 0 {
		c.logger.Info("draft submitted", map[string]interface{}{"draftId": id})
		return nil
	}

	var status string
	err = c.db.QueryRowContext(ctx, statusQuery, id).Scan(&status)
	if err != nil {
		return wrap("submit", err)
	}
	if status == string(models.StatusSubmitted) {
		return newError("submit", KindAlreadySubmitted,
			fmt.Errorf("draft %s already submitted", id))
	}
	return newError("submit", KindInternal,
		fmt.Errorf("draft %s in unexpected status %q", id, status))
}

// marshalForm serializes step-keyed form data for the jsonb column. JSON
// object keys are strings, so step numbers round-trip through strconv.
func marshalForm(form models.FormData) ([]byte, error) {
	keyed := make(map[string]map[string]interface{}, len(form))
	for step, data := range form {
		keyed[strconv.Itoa(step)] = data
	}
	return json.Marshal(keyed)
}

func unmarshalForm(raw []byte) (models.FormData, error) {
	if len(raw) == 0 {
		return models.FormData{}, nil
	}
	keyed := make(map[string]map[string]interface{})
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("decode form data: %w", err)
	}
	form := make(models.FormData, len(keyed))
	for key, data := range keyed {
		step, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("decode form data: bad step key %q", key)
		}
		form[step] = data
	}
	return form, nil
}
