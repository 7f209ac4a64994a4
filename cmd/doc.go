// Package cmd defines the engine-proxy CLI.
//
// Architecture overview:
//   - serve: internal/api.Server resolves search input into redirects and exposes the catalog over HTTP. Catalog
//     writes sit behind the admin session gate in internal/auth.
//   - Catalog: internal/catalog.Service validates input, writes through an engine.Store, and repairs the default
//     flag after every write so exactly one engine is the default whenever the catalog is non-empty.
//   - Storage: storage.driver selects the in-memory store, an embedded SQLite file (default) or Postgres via pgxpool.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via the metrics middleware and /metrics handler; OpenTelemetry spans carry trace ids
//     into request logs. Sign-in attempts are throttled per client.
//
// Quick checklist:
//   - Configure env vars: ENGINE_PROXY_SERVER_PORT or PORT, ADMIN_USERNAME/ADMIN_PASSWORD (or
//     ENGINE_PROXY_AUTH_USERNAME/_PASSWORD), ENGINE_PROXY_STORAGE_DRIVER and ENGINE_PROXY_STORAGE_PATH or
//     ENGINE_PROXY_STORAGE_DSN.
//   - Run locally: go run . serve --config config.yaml, then go run . seed to load the built-in engines.
//   - The process reacts to SIGINT/SIGTERM by draining in-flight requests before closing the store.
package cmd
