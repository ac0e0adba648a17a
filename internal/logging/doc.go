// Package logging provides file-based structured logging with rotation
// for memdex. Ingestion cycles log JSON events to ~/.memdex/logs/, while
// the CLI keeps stderr output minimal unless --verbose is set.
package logging
