// Package authz implements resource-based authorization for surveys.
//
// A Requirement names one rule; the Handler evaluates requirements
// against the current principal and the survey being acted on, using the
// principal's application claims (survey user id, survey tenant id,
// roles). Evaluation is succeed-or-abstain: the handler never errors, it
// either satisfies a requirement or leaves it unsatisfied for the
// enforcement layer to deny.
//
// Policies group requirements under the names route configuration refers
// to; the Registry is built once at startup and immutable afterwards.
package authz
