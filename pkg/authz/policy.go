package authz

import "fmt"

// Well-known policy names referenced by route configuration.
const (
	PolicyRequireSurveyCreator     = "RequireSurveyCreator"
	PolicyRequireSurveyAdmin       = "RequireSurveyAdmin"
	PolicyRequireSurveyContributor = "RequireSurveyContributor"
)

// Policy binds a name to an ordered requirement list plus enforcement
// settings. Every listed requirement must be satisfied for the policy to
// pass.
type Policy struct {
	Name                 string
	Requirements         []Requirement
	RequireAuthenticated bool
	// Schemes names the authentication schemes whose principals this
	// policy accepts (e.g. "session", "bearer"). Empty means any.
	Schemes []string
}

// Registry is an immutable name-to-policy mapping built once at startup.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds a registry from the given policies. Duplicate names
// are a configuration bug and fail construction.
func NewRegistry(policies ...Policy) (*Registry, error) {
	m := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("policy name is required")
		}
		if len(p.Requirements) == 0 {
			return nil, fmt.Errorf("policy %s has no requirements", p.Name)
		}
		if _, exists := m[p.Name]; exists {
			return nil, fmt.Errorf("duplicate policy name: %s", p.Name)
		}
		m[p.Name] = p
	}
	return &Registry{policies: m}, nil
}

// Policy returns the named policy. Unknown names report ok=false and the
// enforcement layer must fail closed.
func (r *Registry) Policy(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// DefaultPolicies returns the application's standard policy set.
func DefaultPolicies(schemes ...string) []Policy {
	return []Policy{
		{
			Name:                 PolicyRequireSurveyCreator,
			Requirements:         []Requirement{RequireSurveyCreator},
			RequireAuthenticated: true,
			Schemes:              schemes,
		},
		{
			Name:                 PolicyRequireSurveyAdmin,
			Requirements:         []Requirement{RequireSurveyAdmin},
			RequireAuthenticated: true,
			Schemes:              schemes,
		},
		{
			Name:                 PolicyRequireSurveyContributor,
			Requirements:         []Requirement{RequireSurveyContributor},
			RequireAuthenticated: true,
			Schemes:              schemes,
		},
	}
}
