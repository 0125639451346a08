// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/searches and GET /v1/searches/{id}... for run submission,
//     status, results, and cancellation.
//   - POST /v1/feedback and /v1/bounces for the confidence feedback loop.
//   - GET /v1/quota for API key pool capacity.
package api
