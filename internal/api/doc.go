// Package api implements the HTTP REST API and WebSocket server for Gray Sync Core.
//
// This package provides:
//   - REST endpoints for slot value reads, menu lookups, and gateway status
//   - WebSocket hub for real-time update record broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces (dashboards, mobile apps,
// integration scripts) and the synchronization pipeline. Reads are served
// from the materialized store; real-time updates reach WebSocket clients
// through the Hub, which is attached to the update bus as a consumer and
// relays every record in publish order.
//
// # Security
//
// Authentication uses JWT bearer tokens signed with HS256. WebSocket
// connections use single-use tickets to prevent token leakage in URLs;
// the ticket carries the caller's identity and permission mask onto the
// connection.
//
// # Graceful Degradation
//
// The server operates without a gateway — store reads and WebSocket
// connections work, only the status and subscribe endpoints report the
// engine as unavailable.
package api
