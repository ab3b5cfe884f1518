// Package types defines the shared error model for the service.
//
// It is the lowest-level package and imports nothing internal, so every
// layer can speak the same error codes without creating import cycles.
package types
