// Package roles defines the fixed role enumeration of the tracker and the
// precedence table used by permission evaluation.
//
// Global roles:
//
//	ADMIN            - manages every project, appoints managers, deletes accounts
//	PROJECT_MANAGER  - default role of accounts that manage a project
//	DEVELOPER, QA    - default roles of project members
//	USER             - account not attached to any project
//
// Inside a project only PROJECT_MANAGER, DEVELOPER and QA may be stored on a
// membership row, and at most one row per project holds PROJECT_MANAGER.
//
// Precedence is an explicit table (see Rank), never the declaration order:
//
//	roles.AtLeast(roles.EffectiveRole(user.Role, m.Role), roles.ProjectManager)
package roles
