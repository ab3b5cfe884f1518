// Package server manages the HTTP server lifecycle: non-blocking
// start, graceful shutdown with a bounded drain window, and
// SIGINT/SIGTERM handling via WaitForShutdown.
package server
