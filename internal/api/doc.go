// Package api hosts the dashboard HTTP server. Notable routes:
//   - GET /healthz for liveness probes and GET /metrics for Prometheus.
//   - GET /api/status and /api/health for scheduler and service state.
//   - POST /api/tasks/{name} to run a task now.
//   - GET /api/reports/{type}, /api/logs[/{service}] and /api/runs[/{id}].
//   - PUT /api/config to replace the configuration and reschedule.
//   - GET /api/ws for the live event stream fed by the progress hub.
//
// Every /api route sits behind HTTP basic auth when it is enabled.
package api
