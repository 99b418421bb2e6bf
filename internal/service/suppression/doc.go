// Package suppression implements the suppression set: the addresses that
// must never receive mail again.
//
// Addresses enter from three places (explicit unsubscribe, provider
// bounce/complaint webhooks, and the bulk sender's permanent-failure
// classifier) and every one of them goes through Add or AddMany. Membership
// is monotonic; nothing in this package removes an address.
//
// The service layer normalizes and de-duplicates input and depends on the
// Repository interface defined in repository.go.
package suppression
