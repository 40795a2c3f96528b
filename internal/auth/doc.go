// Package auth manages the bearer token used for every service request.
//
// Manager exchanges client credentials through the OAuth2 client-credentials
// grant, caches the token until it is within a safety margin of expiry, and
// collapses concurrent refreshes into a single request so every waiter sees
// the same token or the same AuthenticationError.
package auth
