// Package integration contains the Integration bounded context.
// This context tracks how supplier products are synchronized to sales-channel
// destinations (Amazon, PrestaShop, Shopify, WooCommerce).
//
// Key concepts:
//   - ConnectionPair: a tenant-scoped binding of one supplier to one destination
//   - SyncRecord: the per-(connection pair, product) row tracking sync and catalog status
//   - SyncLog: append-only audit entry for one sync attempt
//   - DestinationClient: port for a marketplace API, selected by DestinationType
//   - RetryPolicy: decides when a failed record becomes eligible again
//   - SyncJob / JobQueue: the unit of background sync work and where it is enqueued
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
