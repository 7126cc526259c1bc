// Package logging provides the slog backbone for the bot: a swap-in-place
// atomic handler so reconfiguration never invalidates existing loggers, a
// fanout over console and file sinks, and a compact terminal format.
package logging
