// Package authz decides whether an actor may view or manage a project and
// whether they may save or remove a work log entry.
//
// Evaluators are read-only and safe for concurrent use. They never return an
// error: a missing actor, project, issue or work log and any store failure
// all evaluate to deny, and callers must not proceed past a deny.
//
//	evaluator := authz.NewEvaluator(store, logger, metrics)
//	if !evaluator.CanManageProject(ctx, actorID, projectID) {
//		return transition.ErrAccessDenied
//	}
package authz
