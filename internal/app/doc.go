// Package app composes the BookMate services into a running application.
//
//	internal/app/
//	├── application.go   # Stores, Options, wiring and lifecycle
//	├── domain/          # Plain data models (tenant, reconciliation, snapshot, audit)
//	├── storage/         # Store interfaces, in-memory and Postgres implementations
//	├── services/        # tenants registry, books, reconcile
//	├── httpapi/         # gorilla/mux router and handlers
//	├── runtime/         # process wiring from config: DB, cache, Sheets, HTTP server
//	├── system/          # lifecycle manager for background services
//	└── metrics/         # Prometheus collectors
//
// Domain models carry no behaviour. Services depend on the storage
// interfaces, never on a concrete store, and on tenants.Webhook rather than
// the Apps Script client directly.
package app
