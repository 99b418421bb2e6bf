// Package domain holds the value types shared by the subscription ledger,
// the event log, the suppression set and the bulk sender.
//
// A Subscriber moves pending -> confirmed, and any state may move to
// suppressed. Suppressed is terminal: nothing in this system moves an
// address out of it. Events are append-only and never updated.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are fine; behavior beyond small predicates is not
package domain
