package surveys

import (
	"context"
	"database/sql"
	"fmt"

	// Postgres driver, registered for database/sql.
	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const surveyColumns = `id, title, owner_id, tenant_id, published`

// GetSurvey returns one survey with its contributor set loaded.
func (s *PostgresStore) GetSurvey(ctx context.Context, id int64) (*Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE id = $1`

	var survey Survey
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&survey.ID,
		&survey.Title,
		&survey.OwnerID,
		&survey.TenantID,
		&survey.Published,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrSurveyNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}

	contributors, err := s.getContributors(ctx, id)
	if err != nil {
		return nil, err
	}
	survey.Contributors = contributors

	return &survey, nil
}

// GetSurveysByOwner returns every survey owned by userID.
func (s *PostgresStore) GetSurveysByOwner(ctx context.Context, userID int64) ([]Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE owner_id = $1 ORDER BY id`
	return s.querySurveys(ctx, query, userID)
}

// GetPublishedSurveysByOwner returns published surveys owned by userID.
func (s *PostgresStore) GetPublishedSurveysByOwner(ctx context.Context, userID int64) ([]Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE owner_id = $1 AND published ORDER BY id`
	return s.querySurveys(ctx, query, userID)
}

// GetSurveysByContributor returns surveys userID contributes to.
func (s *PostgresStore) GetSurveysByContributor(ctx context.Context, userID int64) ([]Survey, error) {
	query := `
		SELECT s.id, s.title, s.owner_id, s.tenant_id, s.published
		FROM surveys s
		JOIN survey_contributors sc ON sc.survey_id = s.id
		WHERE sc.user_id = $1
		ORDER BY s.id
	`
	return s.querySurveys(ctx, query, userID)
}

// GetPublishedSurveysByTenant returns published surveys in a tenant.
func (s *PostgresStore) GetPublishedSurveysByTenant(ctx context.Context, tenantID int64) ([]Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE tenant_id = $1 AND published ORDER BY id`
	return s.querySurveys(ctx, query, tenantID)
}

// GetUnpublishedSurveysByTenant returns unpublished surveys in a tenant.
func (s *PostgresStore) GetUnpublishedSurveysByTenant(ctx context.Context, tenantID int64) ([]Survey, error) {
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE tenant_id = $1 AND NOT published ORDER BY id`
	return s.querySurveys(ctx, query, tenantID)
}

// CreateSurvey inserts a survey and fills in its generated id.
func (s *PostgresStore) CreateSurvey(ctx context.Context, survey *Survey) error {
	query := `
		INSERT INTO surveys (title, owner_id, tenant_id, published)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		survey.Title,
		survey.OwnerID,
		survey.TenantID,
		survey.Published,
	).Scan(&survey.ID)
	if err != nil {
		return fmt.Errorf("failed to create survey: %w", err)
	}
	return nil
}

// UpdateSurvey replaces the mutable survey fields.
func (s *PostgresStore) UpdateSurvey(ctx context.Context, survey *Survey) error {
	query := `UPDATE surveys SET title = $1, published = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, survey.Title, survey.Published, survey.ID)
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}
	return s.requireRow(res, survey.ID)
}

// DeleteSurvey removes a survey and its contributor rows.
func (s *PostgresStore) DeleteSurvey(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM survey_contributors WHERE survey_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete survey contributors: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM surveys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	return s.requireRow(res, id)
}

// SetPublished flips the published flag.
func (s *PostgresStore) SetPublished(ctx context.Context, id int64, published bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE surveys SET published = $1 WHERE id = $2`, published, id)
	if err != nil {
		return fmt.Errorf("failed to set published: %w", err)
	}
	return s.requireRow(res, id)
}

// AddContributor grants userID contributor access to a survey.
func (s *PostgresStore) AddContributor(ctx context.Context, surveyID, userID int64) error {
	query := `
		INSERT INTO survey_contributors (survey_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (survey_id, user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, surveyID, userID); err != nil {
		return fmt.Errorf("failed to add contributor: %w", err)
	}
	return nil
}

// CreateContributorRequest records a pending email invitation.
func (s *PostgresStore) CreateContributorRequest(ctx context.Context, req *ContributorRequest) error {
	query := `
		INSERT INTO contributor_requests (survey_id, email_address, created)
		VALUES ($1, $2, $3)
		ON CONFLICT (survey_id, email_address) DO NOTHING
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query, req.SurveyID, req.EmailAddress, req.Created).Scan(&req.ID)
	if err == sql.ErrNoRows {
		// Duplicate invitation, nothing inserted.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create contributor request: %w", err)
	}
	return nil
}

// GetContributorRequests lists pending invitations for a survey.
func (s *PostgresStore) GetContributorRequests(ctx context.Context, surveyID int64) ([]ContributorRequest, error) {
	query := `
		SELECT id, survey_id, email_address, created
		FROM contributor_requests
		WHERE survey_id = $1
		ORDER BY created
	`
	rows, err := s.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor requests: %w", err)
	}
	defer rows.Close()

	var reqs []ContributorRequest
	for rows.Next() {
		var r ContributorRequest
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.EmailAddress, &r.Created); err != nil {
			return nil, fmt.Errorf("failed to scan contributor request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// GetContributorRequestsByEmail lists pending invitations addressed to email.
func (s *PostgresStore) GetContributorRequestsByEmail(ctx context.Context, email string) ([]ContributorRequest, error) {
	query := `
		SELECT id, survey_id, email_address, created
		FROM contributor_requests
		WHERE email_address = $1
		ORDER BY created
	`
	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributor requests by email: %w", err)
	}
	defer rows.Close()

	var reqs []ContributorRequest
	for rows.Next() {
		var r ContributorRequest
		if err := rows.Scan(&r.ID, &r.SurveyID, &r.EmailAddress, &r.Created); err != nil {
			return nil, fmt.Errorf("failed to scan contributor request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// DeleteContributorRequest removes a resolved invitation. Deleting a
// request that no longer exists is not an error.
func (s *PostgresStore) DeleteContributorRequest(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contributor_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete contributor request: %w", err)
	}
	return nil
}

func (s *PostgresStore) getContributors(ctx context.Context, surveyID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM survey_contributors WHERE survey_id = $1 ORDER BY user_id`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contributors: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) querySurveys(ctx context.Context, query string, arg int64) ([]Survey, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer rows.Close()

	var out []Survey
	for rows.Next() {
		var sv Survey
		if err := rows.Scan(&sv.ID, &sv.Title, &sv.OwnerID, &sv.TenantID, &sv.Published); err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrSurveyNotFound, id)
	}
	return nil
}
