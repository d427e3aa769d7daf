package surveys

import (
	"context"
	"fmt"
)

// ResolvePendingContributorRequests grants contributor access for every
// pending invitation addressed to email and removes the resolved
// requests. It returns the number of surveys the user was granted
// access to. A user with no pending invitations resolves to zero
// grants without error.
func ResolvePendingContributorRequests(ctx context.Context, store Store, email string, userID int64) (int, error) {
	if email == "" {
		return 0, nil
	}

	requests, err := store.GetContributorRequestsByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending contributor requests: %w", err)
	}

	granted := 0
	for _, req := range requests {
		if err := store.AddContributor(ctx, req.SurveyID, userID); err != nil {
			return granted, fmt.Errorf("failed to grant contributor access: %w", err)
		}
		if err := store.DeleteContributorRequest(ctx, req.ID); err != nil {
			return granted, fmt.Errorf("failed to remove resolved contributor request: %w", err)
		}
		granted++
	}
	return granted, nil
}
