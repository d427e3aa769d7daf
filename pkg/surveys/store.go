package surveys

import (
	"context"
	"errors"
)

// ErrSurveyNotFound is returned when a survey id does not exist.
var ErrSurveyNotFound = errors.New("survey not found")

// Store is the persistence contract for surveys and their contributor
// sets. Implementations must return ErrSurveyNotFound (possibly wrapped)
// for unknown ids so callers can fail closed.
type Store interface {
	GetSurvey(ctx context.Context, id int64) (*Survey, error)

	GetSurveysByOwner(ctx context.Context, userID int64) ([]Survey, error)
	GetPublishedSurveysByOwner(ctx context.Context, userID int64) ([]Survey, error)
	GetSurveysByContributor(ctx context.Context, userID int64) ([]Survey, error)
	GetPublishedSurveysByTenant(ctx context.Context, tenantID int64) ([]Survey, error)
	GetUnpublishedSurveysByTenant(ctx context.Context, tenantID int64) ([]Survey, error)

	CreateSurvey(ctx context.Context, survey *Survey) error
	UpdateSurvey(ctx context.Context, survey *Survey) error
	DeleteSurvey(ctx context.Context, id int64) error
	SetPublished(ctx context.Context, id int64, published bool) error

	AddContributor(ctx context.Context, surveyID, userID int64) error
	CreateContributorRequest(ctx context.Context, req *ContributorRequest) error
	GetContributorRequests(ctx context.Context, surveyID int64) ([]ContributorRequest, error)
	GetContributorRequestsByEmail(ctx context.Context, email string) ([]ContributorRequest, error)
	DeleteContributorRequest(ctx context.Context, id int64) error
}
