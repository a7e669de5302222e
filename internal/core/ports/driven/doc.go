// Package driven defines the interfaces the core services depend on:
// connectors, normalisers and the storage ports. Implementations live under
// internal/connectors, internal/normalisers and internal/adapters/driven.
package driven
