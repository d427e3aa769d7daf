package identity

import (
	"errors"
	"fmt"
	"strconv"
)

// Claim type constants. These are the exact claim keys the application
// consumes; the survey_* claims are issued by the application itself when
// a user is provisioned, the rest come from the identity provider.
const (
	ClaimObjectID       = "oid"
	ClaimTenantID       = "tid"
	ClaimSurveyUserID   = "survey_userid"
	ClaimSurveyTenantID = "survey_tenantid"
	ClaimEmail          = "email"
	ClaimRoles          = "roles"
)

// Application role values carried in ClaimRoles claims.
const (
	RoleSurveyCreator = "SurveyCreator"
	RoleSurveyAdmin   = "SurveyAdmin"
)

var (
	// ErrMissingClaim indicates a principal lacks an expected claim.
	ErrMissingClaim = errors.New("missing claim")

	// ErrMalformedClaim indicates a claim is present but not parseable.
	ErrMalformedClaim = errors.New("malformed claim")
)

// Claim is a single name/value assertion about a principal.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is the authenticated identity attached to a request. It is
// produced by the authentication layer once per request and is immutable
// afterwards; every accessor is deterministic and performs no I/O.
type Principal struct {
	claims []Claim
}

// NewPrincipal creates a principal from a claim list. The list is copied
// so callers cannot mutate the principal after construction.
func NewPrincipal(claims []Claim) *Principal {
	cp := make([]Claim, len(claims))
	copy(cp, claims)
	return &Principal{claims: cp}
}

// Claims returns a copy of the principal's claims.
func (p *Principal) Claims() []Claim {
	cp := make([]Claim, len(p.claims))
	copy(cp, p.claims)
	return cp
}

// Value returns the first claim of the given type. This is the tolerant
// access mode: an absent claim yields ("", false), never an error.
func (p *Principal) Value(claimType string) (string, bool) {
	for _, c := range p.claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// HasRole reports whether the principal carries the given role claim.
func (p *Principal) HasRole(role string) bool {
	for _, c := range p.claims {
		if c.Type == ClaimRoles && c.Value == role {
			return true
		}
	}
	return false
}

// ObjectID returns the identity provider's stable object identifier for
// the user. Strict mode: fails when the claim is absent.
func (p *Principal) ObjectID() (string, error) {
	return p.required(ClaimObjectID)
}

// TenantID returns the issuer tenant identifier. Strict mode.
func (p *Principal) TenantID() (string, error) {
	return p.required(ClaimTenantID)
}

// Email returns the email claim in tolerant mode.
func (p *Principal) Email() string {
	v, _ := p.Value(ClaimEmail)
	return v
}

// SurveyUserID returns the application-local numeric user id.
func (p *Principal) SurveyUserID() (int64, error) {
	return p.numeric(ClaimSurveyUserID)
}

// SurveyTenantID returns the application-local numeric tenant id.
func (p *Principal) SurveyTenantID() (int64, error) {
	return p.numeric(ClaimSurveyTenantID)
}

func (p *Principal) required(claimType string) (string, error) {
	v, ok := p.Value(claimType)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingClaim, claimType)
	}
	return v, nil
}

func (p *Principal) numeric(claimType string) (int64, error) {
	v, err := p.required(claimType)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrMalformedClaim, claimType, v)
	}
	return n, nil
}
