// Package web is the HTTP surface of the survey application.
//
// The middleware chain restores the principal (session cookie or bearer
// token), attaches a per-request token cache scope, and records metrics.
// Route access is gated by PolicyEnforcer, which resolves the target
// survey and evaluates the route's named policy before the handler runs;
// every failure mode denies.
package web
