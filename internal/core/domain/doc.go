// Package domain contains the core business entities for the artdig
// ingestion engine: raw records, canonical artworks, checkpoints and
// ingest runs. It has no dependencies on other internal packages.
package domain
