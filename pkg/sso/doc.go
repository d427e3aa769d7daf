// Package sso implements OpenID Connect sign-in and sign-out for the
// survey application.
//
// The Authenticator runs the authorization-code flow against the
// configured identity provider, maps verified ID-token claims to an
// identity.Principal, and writes the downstream API token through the
// principal's token cache. Sessions are claims serialized into an
// encrypted cookie; the SessionManager restores them per request and the
// SignOutManager tears both session and cached tokens down together.
package sso
