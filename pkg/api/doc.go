// Package api exposes the membership engine over HTTP.
//
// The caller is identified by the X-Actor-ID header, set by the session layer
// in front of this service. Handlers translate transition errors to status
// codes: access denied 403, not found 404, validation 400 and concurrent
// appointment 409. When Dependencies.RateLimiter is set, actor routes are
// limited per actor and over-limit requests get 429.
//
//	server := api.NewServer(api.Dependencies{
//		Transitions: transitions,
//		Projects:    evaluator,
//		WorkLogs:    worklogs,
//		Logger:      logger,
//	})
//	http.ListenAndServe(":8080", server.Handler())
package api
