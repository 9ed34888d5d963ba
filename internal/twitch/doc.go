// Package twitch integrates with the Twitch Helix API.
//
// Client wraps user lookup and EventSub subscription CRUD behind app-token
// authentication. Receiver verifies and classifies inbound webhook deliveries.
package twitch
