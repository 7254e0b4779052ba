// Package internal documents the BreederHQ server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, and routing
// - domain: per-resource services, types, and repository contracts
// - storage: Postgres repositories and migrations
// - jobs: River workers for draft timeouts, email delivery, and cleanup
// - auth, audit, config, metrics, telemetry: shared infrastructure
// - email, webhooks, payments, documents, realtime: provider integrations
//
// Code in internal/ is not meant for external import.
package internal
