// Package services implements the core ingestion logic: the run
// orchestrator (reconciler), the connector factory and the normaliser
// registry. Services depend only on domain types and ports.
package services
