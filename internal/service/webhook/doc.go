// Package webhook ingests signed delivery-provider notifications.
//
// Requests are verified with the Svix scheme before the body is parsed.
// Every verified event is appended to the event log under a provider
// qualified type; bounces and complaints also suppress the address.
package webhook
