// Package events provides a buffered publish/subscribe broker for fleet
// lifecycle events: server admin actions, task launches and failures,
// declined offers. The scheduler engine publishes; the admin API streams
// events to clients. Slow subscribers are skipped, never blocked on.
package events
