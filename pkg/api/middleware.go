package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/httputil"
)

// ActorHeader carries the authenticated user's ID
const ActorHeader = "X-Actor-ID"

// ActorMiddleware stores the actor ID from ActorHeader in the request
// context. Requests without a valid positive ID get 401.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ActorHeader)
		if raw == "" {
			httputil.WriteUnauthorized(w, "missing "+ActorHeader+" header")
			return
		}
		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actorID <= 0 {
			httputil.WriteUnauthorized(w, "invalid "+ActorHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithActorID(r.Context(), actorID)))
	})
}

// actorID reads the ID stored by ActorMiddleware
func actorID(r *http.Request) int64 {
	id, _ := contextkeys.ActorID(r.Context())
	return id
}
