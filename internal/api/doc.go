// Package api hosts the HTTP server, middleware, and handlers of the engine
// proxy. Notable routes:
//   - GET /search?q=... and /search/* resolve shortcuts and redirect.
//   - GET /shortcuts and /api/shortcuts list the catalog.
//   - POST/PUT/DELETE /api/shortcuts[/{id}] manage it behind the admin gate.
//   - GET/POST /admin/sign-in and POST /admin/sign-out manage the session.
//   - Every other path under /admin is behind the gate, including unknown ones.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
