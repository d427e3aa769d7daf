package authz

// Requirement is a stateless marker identifying one authorization rule.
// Requirements carry no data; the handler dispatches on the value.
type Requirement string

const (
	// RequireSurveyCreator is satisfied by principals carrying the
	// SurveyCreator role. It governs creating, owning and deleting
	// surveys and does not consult the survey resource.
	RequireSurveyCreator Requirement = "SurveyCreator"

	// RequireSurveyAdmin is satisfied by the survey's owner, or by a
	// tenant admin of the survey's tenant. It governs administer-level
	// operations: update, delete, publish, contributor management.
	RequireSurveyAdmin Requirement = "SurveyAdmin"

	// RequireSurveyContributor is satisfied by the survey's owner or by
	// any user in its contributor set. It governs read and edit access
	// to unpublished survey content.
	RequireSurveyContributor Requirement = "SurveyContributor"
)
