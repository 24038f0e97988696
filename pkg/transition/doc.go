// Package transition applies membership and role changes: appointing a
// project manager, assigning DEVELOPER or QA, removing a member and soft
// deleting an account.
//
// Each (user, project) pair moves through ABSENT, DEVELOPER, QA and
// PROJECT_MANAGER. PROJECT_MANAGER is entered only by appointment and left
// only by demotion to DEVELOPER when someone else is appointed, or by
// removal. At most one pair per project holds PROJECT_MANAGER; appointment is
// a compare-and-swap on the project's manager slot, so of two racing
// appointments one fails with ErrConcurrencyConflict.
//
// Every operation checks the actor first. Failures are reported with the
// sentinels in errors.go and tested with errors.Is.
package transition
