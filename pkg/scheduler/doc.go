/*
Package scheduler implements the offer-accept engine at the heart of
zkfleet.

The engine is driven from two directions: the resource manager pushes offers
and task status updates through callback endpoints, and operators mutate the
fleet through the admin API. Both paths converge on one Engine and one
exclusive lock, so no offer evaluation ever interleaves with an admin
mutation:

	offer ──► AcceptOffer ──► failover gate ──► constraints + stickiness
	                                │                    │
	                                ▼                    ▼
	                          cpu/mem fit ──► port allocation ──► LaunchTask
	                                                                  │
	                                                                  ▼
	                                                   Staging, persist, done

Each server walks the lifecycle added → stopped → staging → running, where
"stopped" means desired-to-run and waiting for a matching offer. A terminal
status update sends the server back to stopped behind an exponential
failover delay; an operator stop returns it to added.

Every committed transition is persisted synchronously through the configured
storage backend before the lock is released, which keeps the snapshot from
ever lagging a successfully answered admin request.
*/
package scheduler
