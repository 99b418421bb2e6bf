// Package ledger defines the transactional contract over the subscriber
// ledger and the append-only event log.
//
// Every multi-statement sequence (confirm, webhook ingestion, unsubscribe)
// runs inside Store.WithTx so a failure rolls back every write. Ledger.Run
// adds the post-commit step: events recorded inside the transaction are
// counted and forwarded to the audit publisher only once the commit has
// succeeded, so downstream consumers never see rolled-back history.
package ledger
