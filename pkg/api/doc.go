/*
Package api exposes zkfleet over HTTP: the operator-facing admin surface and
the callback intake the resource manager pushes into.

Admin routes:

	GET    /api/servers              fleet status, registration order
	POST   /api/servers              add a server
	PUT    /api/servers/{id}         update config and constraints
	POST   /api/servers/{id}/start   mark desired-to-run
	POST   /api/servers/{id}/stop    take out of scheduling, kill its task
	DELETE /api/servers/{id}         remove (inactive servers only)
	GET    /api/events               newline-delimited JSON event stream

Callback routes:

	POST /api/offers                 one resource offer to evaluate
	POST /api/status                 one task status update

Plus /health and the Prometheus /metrics endpoint. Every mutating response
is written only after the engine has persisted the transition.
*/
package api
