// Package log provides structured logging for zkfleet built on zerolog.
//
// A single global logger is initialized once at process start via Init and
// consumed through component-scoped child loggers:
//
//	log.Init(log.Config{Level: log.InfoLevel})
//	logger := log.WithComponent("scheduler")
//	logger.Info().Str("offer_id", offer.ID).Msg("offer received")
package log
