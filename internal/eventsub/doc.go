// Package eventsub manages the webhook subscription lifecycle: bringing up
// the callback listener, keeping subscriptions in sync with the provider,
// verifying inbound deliveries, and applying notifications to local state.
package eventsub
