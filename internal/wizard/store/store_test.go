// internal/wizard/store/store_test.go
package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

func newTestClient(t *testing.T) (*Client, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewClient(db, logger.NewTestLogger(t)), mock, func() { db.Close() }
}

func testDraft() *models.ApplicationDraft {
	return &models.ApplicationDraft{
		ResumeToken: "a1b2c3",
		FormData: models.FormData{
			1: {"firstName": "Jane", "lastName": "Doe", "dateOfBirth": "1990-04-12"},
			2: {"email": "jane@example.com", "phone": "5551234567"},
		},
		CurrentStep:    3,
		Status:         models.StatusDraft,
		ApplicantName:  "Jane Doe",
		ApplicantEmail: "jane@example.com",
		ApplicantPhone: "5551234567",
		AdvisorID:      "adv-42",
		AdvisorName:    "Sam Advisor",
	}
}

func TestClient_Create_Success(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO draft_applications`).
		WithArgs(
			"a1b2c3",
			sqlmock.AnyArg(), // form JSON
			3,
			"Jane Doe",
			"jane@example.com",
			"5551234567",
			"adv-42",
			"Sam Advisor",
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("draft-001"))

	id, err := client.Create(context.Background(), testDraft())

	assert.NoError(t, err)
	assert.Equal(t, "draft-001", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Create_ConflictSurfacesAsConflict(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO draft_applications`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := client.Create(context.Background(), testDraft())

	assert.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestClient_ReadByToken_Success(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	updatedAt := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "resume_token", "form_data", "current_step", "status",
		"applicant_name", "applicant_email", "applicant_phone",
		"advisor_id", "advisor_name", "updated_at",
	}).AddRow(
		"draft-001", "a1b2c3",
		[]byte(`{"1":{"firstName":"Jane","lastName":"Doe"},"2":{"email":"jane@example.com"}}`),
		3, "draft",
		"Jane Doe", "jane@example.com", "5551234567",
		"adv-42", "Sam Advisor", updatedAt,
	)

	mock.ExpectQuery(`get_draft_application_by_token`).
		WithArgs("a1b2c3").
		WillReturnRows(rows)

	draft, err := client.ReadByToken(context.Background(), "a1b2c3")

	require.NoError(t, err)
	assert.Equal(t, "draft-001", draft.ID)
	assert.Equal(t, "a1b2c3", draft.ResumeToken)
	assert.Equal(t, 3, draft.CurrentStep)
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.Equal(t, "Jane", draft.FormData[1]["firstName"])
	assert.Equal(t, "jane@example.com", draft.FormData[2]["email"])
	assert.Equal(t, "adv-42", draft.AdvisorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_ReadByToken_UnknownTokenIsNotFound(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectQuery(`get_draft_application_by_token`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	draft, err := client.ReadByToken(context.Background(), "missing")

	assert.Nil(t, draft)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestClient_UpdateByToken_Success(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	form := models.FormData{1: {"firstName": "Jane", "lastName": "Doe"}}
	identity := models.ApplicantIdentity{Name: "Jane Doe", Email: "jane@example.com", Phone: "5551234567"}

	mock.ExpectQuery(`update_draft_application_by_token`).
		WithArgs("a1b2c3", sqlmock.AnyArg(), 4, "Jane Doe", "jane@example.com", "5551234567").
		WillReturnRows(sqlmock.NewRows([]string{"update_draft_application_by_token"}).AddRow("draft-001"))

	id, err := client.UpdateByToken(context.Background(), "a1b2c3", form, 4, identity)

	assert.NoError(t, err)
	assert.Equal(t, "draft-001", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_UpdateByToken_NullIDIsNotFound(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectQuery(`update_draft_application_by_token`).
		WillReturnRows(sqlmock.NewRows([]string{"update_draft_application_by_token"}).AddRow(nil))

	_, err := client.UpdateByToken(context.Background(), "stale", models.FormData{}, 2, models.ApplicantIdentity{})

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestClient_UpdateByToken_IsRepeatable(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	form := models.FormData{1: {"firstName": "Jane"}}
	identity := models.ApplicantIdentity{Name: "Jane"}

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`update_draft_application_by_token`).
			WillReturnRows(sqlmock.NewRows([]string{"update_draft_application_by_token"}).AddRow("draft-001"))
	}

	for i := 0; i < 2; i++ {
		id, err := client.UpdateByToken(context.Background(), "a1b2c3", form, 2, identity)
		assert.NoError(t, err)
		assert.Equal(t, "draft-001", id)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Submit_Success(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE draft_applications`).
		WithArgs("draft-001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := client.Submit(context.Background(), "draft-001")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_Submit_AlreadySubmitted(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE draft_applications`).
		WithArgs("draft-001").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM draft_applications`).
		WithArgs("draft-001").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("submitted"))

	err := client.Submit(context.Background(), "draft-001")

	assert.Error(t, err)
	assert.Equal(t, KindAlreadySubmitted, KindOf(err))
}

func TestClient_Submit_MissingDraftIsNotFound(t *testing.T) {
	client, mock, cleanup := newTestClient(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE draft_applications`).
		WithArgs("draft-999").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM draft_applications`).
		WithArgs("draft-999").
		WillReturnError(sql.ErrNoRows)

	err := client.Submit(context.Background(), "draft-999")

	assert.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestFormData_RoundTripsThroughJSONB(t *testing.T) {
	form := models.FormData{
		1: {"firstName": "Jane"},
		5: {"smoker": false},
	}

	raw, err := marshalForm(form)
	require.NoError(t, err)

	decoded, err := unmarshalForm(raw)
	require.NoError(t, err)
	assert.Equal(t, "Jane", decoded[1]["firstName"])
	assert.Equal(t, false, decoded[5]["smoker"])
}

func TestUnmarshalForm_EmptyColumn(t *testing.T) {
	form, err := unmarshalForm(nil)
	assert.NoError(t, err)
	assert.Empty(t, form)
}

func TestUnmarshalForm_BadStepKey(t *testing.T) {
	_, err := unmarshalForm([]byte(`{"not-a-step":{}}`))
	assert.Error(t, err)
}
