package surveys

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupStoreTest(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	store := NewPostgresStore(db)
	cleanup := func() {
		db.Close()
	}
	return store, mock, cleanup
}

func surveyRows(surveys ...Survey) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "title", "owner_id", "tenant_id", "published"})
	for _, s := range surveys {
		rows.AddRow(s.ID, s.Title, s.OwnerID, s.TenantID, s.Published)
	}
	return rows
}

func TestGetSurvey(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, title, owner_id, tenant_id, published FROM surveys WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(surveyRows(Survey{ID: 7, Title: "Customer feedback", OwnerID: 100, TenantID: 5, Published: true}))
	mock.ExpectQuery(`SELECT user_id FROM survey_contributors`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(200).AddRow(300))

	survey, err := store.GetSurvey(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetSurvey failed: %v", err)
	}

	if survey.OwnerID != 100 || survey.TenantID != 5 {
		t.Errorf("Unexpected survey ownership: %+v", survey)
	}
	if len(survey.Contributors) != 2 || survey.Contributors[0] != 200 {
		t.Errorf("Unexpected contributors: %v", survey.Contributors)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestGetSurvey_NotFound(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, title, owner_id, tenant_id, published FROM surveys WHERE id = \$1`).
		WithArgs(int64(999)).
		WillReturnRows(surveyRows())

	_, err := store.GetSurvey(context.Background(), 999)
	if !errors.Is(err, ErrSurveyNotFound) {
		t.Errorf("Expected ErrSurveyNotFound, got %v", err)
	}
}

func TestGetSurveysByOwner(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, title, owner_id, tenant_id, published FROM surveys WHERE owner_id = \$1 ORDER BY id`).
		WithArgs(int64(100)).
		WillReturnRows(surveyRows(
			Survey{ID: 1, Title: "A", OwnerID: 100, TenantID: 5},
			Survey{ID: 2, Title: "B", OwnerID: 100, TenantID: 5, Published: true},
		))

	got, err := store.GetSurveysByOwner(context.Background(), 100)
	if err != nil {
		t.Fatalf("GetSurveysByOwner failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 surveys, got %d", len(got))
	}
}

func TestGetSurveysByContributor(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`JOIN survey_contributors sc ON sc.survey_id = s.id`).
		WithArgs(int64(200)).
		WillReturnRows(surveyRows(Survey{ID: 3, Title: "Shared", OwnerID: 100, TenantID: 5}))

	got, err := store.GetSurveysByContributor(context.Background(), 200)
	if err != nil {
		t.Fatalf("GetSurveysByContributor failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 3 {
		t.Errorf("Unexpected result: %+v", got)
	}
}

func TestCreateSurvey(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO surveys`).
		WithArgs("New survey", int64(100), int64(5), false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	survey := &Survey{Title: "New survey", OwnerID: 100, TenantID: 5}
	if err := store.CreateSurvey(context.Background(), survey); err != nil {
		t.Fatalf("CreateSurvey failed: %v", err)
	}
	if survey.ID != 42 {
		t.Errorf("Expected generated id 42, got %d", survey.ID)
	}
}

func TestUpdateSurvey_NotFound(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE surveys SET title = \$1, published = \$2 WHERE id = \$3`).
		WithArgs("T", false, int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateSurvey(context.Background(), &Survey{ID: 999, Title: "T"})
	if !errors.Is(err, ErrSurveyNotFound) {
		t.Errorf("Expected ErrSurveyNotFound, got %v", err)
	}
}

func TestDeleteSurvey(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM survey_contributors WHERE survey_id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM surveys WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteSurvey(context.Background(), 7); err != nil {
		t.Fatalf("DeleteSurvey failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSetPublished(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE surveys SET published = \$1 WHERE id = \$2`).
		WithArgs(true, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetPublished(context.Background(), 7, true); err != nil {
		t.Fatalf("SetPublished failed: %v", err)
	}
}

func TestAddContributor(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO survey_contributors`).
		WithArgs(int64(7), int64(200)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.AddContributor(context.Background(), 7, 200); err != nil {
		t.Fatalf("AddContributor failed: %v", err)
	}
}

func TestCreateContributorRequest(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO contributor_requests`).
		WithArgs(int64(7), "invitee@contoso.test", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	req := &ContributorRequest{SurveyID: 7, EmailAddress: "invitee@contoso.test", Created: created}
	if err := store.CreateContributorRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateContributorRequest failed: %v", err)
	}
	if req.ID != 9 {
		t.Errorf("Expected generated id 9, got %d", req.ID)
	}
}

func TestCreateContributorRequest_Duplicate(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO contributor_requests`).
		WithArgs(int64(7), "invitee@contoso.test", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := &ContributorRequest{SurveyID: 7, EmailAddress: "invitee@contoso.test", Created: created}
	if err := store.CreateContributorRequest(context.Background(), req); err != nil {
		t.Fatalf("Expected duplicate invitation to be a no-op, got %v", err)
	}
}

func TestGetContributorRequestsByEmail(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM contributor_requests\s+WHERE email_address = \$1`).
		WithArgs("invitee@contoso.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "email_address", "created"}).
			AddRow(9, 7, "invitee@contoso.test", created).
			AddRow(10, 8, "invitee@contoso.test", created))

	got, err := store.GetContributorRequestsByEmail(context.Background(), "invitee@contoso.test")
	if err != nil {
		t.Fatalf("GetContributorRequestsByEmail failed: %v", err)
	}
	if len(got) != 2 || got[0].SurveyID != 7 || got[1].SurveyID != 8 {
		t.Errorf("Unexpected requests: %+v", got)
	}
}

func TestDeleteContributorRequest(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM contributor_requests WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteContributorRequest(context.Background(), 9); err != nil {
		t.Fatalf("DeleteContributorRequest failed: %v", err)
	}
}

func TestResolvePendingContributorRequests(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM contributor_requests\s+WHERE email_address = \$1`).
		WithArgs("invitee@contoso.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "email_address", "created"}).
			AddRow(9, 7, "invitee@contoso.test", created).
			AddRow(10, 8, "invitee@contoso.test", created))
	mock.ExpectExec(`INSERT INTO survey_contributors`).
		WithArgs(int64(7), int64(200)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM contributor_requests WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO survey_contributors`).
		WithArgs(int64(8), int64(200)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`DELETE FROM contributor_requests WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	granted, err := ResolvePendingContributorRequests(context.Background(), store, "invitee@contoso.test", 200)
	if err != nil {
		t.Fatalf("ResolvePendingContributorRequests failed: %v", err)
	}
	if granted != 2 {
		t.Errorf("Expected 2 grants, got %d", granted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestResolvePendingContributorRequests_NonePending(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(`FROM contributor_requests\s+WHERE email_address = \$1`).
		WithArgs("nobody@contoso.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "survey_id", "email_address", "created"}))

	granted, err := ResolvePendingContributorRequests(context.Background(), store, "nobody@contoso.test", 200)
	if err != nil {
		t.Fatalf("ResolvePendingContributorRequests failed: %v", err)
	}
	if granted != 0 {
		t.Errorf("Expected no grants, got %d", granted)
	}
}

func TestResolvePendingContributorRequests_EmptyEmail(t *testing.T) {
	store, _, cleanup := setupStoreTest(t)
	defer cleanup()

	granted, err := ResolvePendingContributorRequests(context.Background(), store, "", 200)
	if err != nil || granted != 0 {
		t.Errorf("Expected (0, nil) for empty email, got (%d, %v)", granted, err)
	}
}
