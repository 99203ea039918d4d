// Package webhook receives call-recording events from the telephony provider.
//
// Deliveries are authenticated with an HMAC signature over the raw body,
// bounded by a replay tolerance window, and deduplicated with a short-lived
// in-memory cache before they are persisted as call records. Endpoint
// validation challenges are answered without touching the store.
package webhook
