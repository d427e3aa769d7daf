package surveys

import "time"

// Survey is a tenant-owned survey. Contributors are users from any
// tenant who were granted edit access by the owner.
type Survey struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	OwnerID      int64   `json:"owner_id"`
	TenantID     int64   `json:"tenant_id"`
	Published    bool    `json:"published"`
	Contributors []int64 `json:"contributors,omitempty"`
}

// QuestionType enumerates the supported answer formats.
type QuestionType int

const (
	QuestionSimpleText QuestionType = iota
	QuestionMultipleChoice
	QuestionFiveStars
	QuestionSmileys
)

// Question belongs to exactly one survey.
type Question struct {
	ID              int64        `json:"id"`
	SurveyID        int64        `json:"survey_id"`
	Text            string       `json:"text"`
	Type            QuestionType `json:"type"`
	PossibleAnswers string       `json:"possible_answers,omitempty"`
}

// ContributorRequest is a pending invitation for an email address to
// contribute to a survey. It is resolved to a user id when that user
// next signs in.
type ContributorRequest struct {
	ID           int64     `json:"id"`
	SurveyID     int64     `json:"survey_id"`
	EmailAddress string    `json:"email_address"`
	Created      time.Time `json:"created"`
}
