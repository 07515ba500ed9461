// Package stickiness tracks per-server host affinity: after a stop the
// server is pinned to its previous host for a configurable window before it
// is free to move.
package stickiness
