// Package server implements the HTTP server and orchestrators for
// SecureShare's one-time file relay. It wires together the routes,
// dependencies (record ledger, content store, scanner, cipher, audit
// trail) and provides lifecycle helpers used by tests and the
// production binary.
package server
