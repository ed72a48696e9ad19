// Package main hosts the orchestrator service entrypoint.
//
// Architecture overview:
//   - Scheduler: internal/scheduler owns one cron timer per enabled automation task (technical-seo,
//     performance-monitoring, content-update, search-engine-notification, reporting). A task never overlaps
//     itself; a trigger that finds it running is recorded as skipped. Scheduled failures raise alerts.
//   - Audit pipeline: internal/audit runs six category auditors (core web vitals, broken links, image
//     optimization, mobile usability, site structure, security) with bounded parallelism, aggregates the
//     weighted overall score and persists the run to the configured history store.
//   - Fetching: the Colly-based fetcher probes links, reads sitemaps and crawls site structure; a single owned
//     Chromedp browser measures vitals and mobile layout. When the browser cannot start, the two browser
//     categories report errors and the audit service reports degraded health.
//   - Events: task results, alerts, health and metrics snapshots, and log lines flow through the progress Hub to
//     the log, Prometheus, run store, Pub/Sub and dashboard WebSocket sinks.
//   - HTTP API: internal/api serves /healthz, /metrics and the basic-auth protected /api routes for status,
//     manual runs, reports, logs, run history and configuration updates.
//
// Operational notes:
//   - Configuration comes from a yaml/json file plus SEO_* environment overrides; DASHBOARD_USER and
//     DASHBOARD_PASSWORD set the dashboard credentials. A .env file in the working directory is loaded first.
//   - Schedule changes made through PUT /api/config or a watched config file apply without restart.
//   - The process reacts to SIGINT/SIGTERM by stopping timers, waiting for in-flight runs and draining the Hub.
//
// Quick checklist:
//   - Run locally: go run ./cmd/seo-orchestrator start --config config.yaml
//   - One-off runs: seo-orchestrator run technical-seo, seo-orchestrator run reporting '{"format":"html"}'
package main
