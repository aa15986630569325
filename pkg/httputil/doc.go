// Package httputil provides the JSON response helpers and middleware shared
// by the ops server and the permission middleware.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, status)
//	httputil.WriteForbidden(w, "Insufficient permissions")
//	httputil.WriteServiceUnavailable(w, "Permission check failed")
//
// Error bodies have the form {"error": "..."}.
//
// # Middleware
//
//	router.Use(httputil.RequestIDMiddleware)
//	router.Use(httputil.RecoveryMiddleware(logger))
//
// RequestIDMiddleware honors an incoming X-Request-ID header and otherwise
// generates one; either way it is echoed on the response and placed on the
// request context for loggers.
package httputil
