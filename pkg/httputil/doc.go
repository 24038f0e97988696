// Package httputil holds the JSON response writers, request parsing helpers
// and generic middleware shared by the tracker HTTP handlers.
//
// Handlers parse path parameters and bodies with the *OrError helpers, which
// write a 400 response and return false on failure:
//
//	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
//	if !ok {
//		return
//	}
package httputil
