// Package subscription implements the double opt-in protocol: Subscribe
// issues a one-time token for a pending address, Confirm redeems it exactly
// once, and Unsubscribe moves an address into the absorbing suppressed state.
//
// Only the SHA-256 of a token is stored. Every branch writes an event inside
// the same transaction as its ledger change, and externally visible answers
// never distinguish suppressed, throttled and fresh addresses.
package subscription
