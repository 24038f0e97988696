package api

import (
	"net/http"

	"github.com/platinummonkey/tracker/pkg/authz"
	"github.com/platinummonkey/tracker/pkg/httputil"
	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

// projectAccess reports the actor's view and manage rights
func (s *Server) projectAccess(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	ctx := r.Context()
	actor := actorID(r)
	httputil.WriteSuccess(w, AccessResponse{
		ProjectID: projectID,
		CanView:   s.projects.CanViewProject(ctx, actor, projectID),
		CanManage: s.projects.CanManageProject(ctx, actor, projectID),
	})
}

func (s *Server) getManager(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	state, err := s.transitions.ProjectManager(r.Context(), actorID(r), projectID)
	if err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, state)
}

func (s *Server) appointManager(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	var req AppointManagerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}

	if err := s.transitions.AppointProjectManager(r.Context(), actorID(r), req.UserID, projectID); err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	members, err := s.transitions.ProjectMembers(r.Context(), actorID(r), projectID)
	if err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MembersResponse{ProjectID: projectID, Members: members})
}

func (s *Server) availableUsers(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	users, err := s.transitions.AvailableMembers(r.Context(), actorID(r), projectID)
	if err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AvailableUsersResponse{ProjectID: projectID, Users: users})
}

func (s *Server) roleOptions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	options, err := s.transitions.RoleOptions(r.Context(), actorID(r), projectID, userID)
	if err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, RoleOptionsResponse{ProjectID: projectID, UserID: userID, Roles: options})
}

func (s *Server) assignRole(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := roles.Parse(req.Role)
	if err != nil {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	if err := s.transitions.AssignRole(r.Context(), actorID(r), projectID, userID, role); err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := s.transitions.RemoveMembership(r.Context(), actorID(r), projectID, userID); err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) softDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := s.transitions.SoftDeleteUser(r.Context(), actorID(r), userID); err != nil {
		s.writeTransitionError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// checkSaveWorkLog evaluates a draft entry. An empty body checks the issue alone.
func (s *Server) checkSaveWorkLog(w http.ResponseWriter, r *http.Request) {
	issueID, ok := httputil.ParsePathInt64OrError(w, r, "issue_id")
	if !ok {
		return
	}

	var draft *store.WorkLog
	var req WorkLogDraft
	present, ok := httputil.ParseOptionalJSONOrError(w, r, &req)
	if !ok {
		return
	}
	if present {
		if req.DurationSeconds < 0 {
			httputil.WriteBadRequest(w, "duration_seconds must not be negative")
			return
		}
		if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
			httputil.WriteBadRequest(w, "end_date is before start_date")
			return
		}
		draft = req.WorkLog()
	}

	d := s.worklogs.DecideSave(r.Context(), actorID(r), issueID, draft)
	httputil.WriteSuccess(w, checkResponse(d))
}

func (s *Server) checkRemoveWorkLog(w http.ResponseWriter, r *http.Request) {
	workLogID, ok := httputil.ParsePathInt64OrError(w, r, "worklog_id")
	if !ok {
		return
	}

	d := s.worklogs.DecideRemove(r.Context(), actorID(r), workLogID)
	httputil.WriteSuccess(w, checkResponse(d))
}

// checkResponse hides the reason of a deny so missing issues and work logs
// look the same as forbidden ones
func checkResponse(d authz.Decision) CheckResponse {
	if !d.Allowed {
		return CheckResponse{Allowed: false}
	}
	return CheckResponse{Allowed: true, Reason: d.Reason}
}
