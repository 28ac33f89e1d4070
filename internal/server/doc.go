// Package server is the stash HTTP API.
//
// # Routes
//
//	GET  /health
//	GET  /auth/login       redirect to the catalog's consent page
//	GET  /auth/callback    exchange the code, store the credential, start a session
//	POST /auth/logout
//	GET  /api/token        a usable catalog access token
//	POST /api/acquire      {"trackId": "...", "url": "..."}
//	GET  /api/library      acquired tracks with playable URLs
//	GET  /api/tracks/{id}  a catalog track's preview descriptor
//	GET  /media/*          stored audio
//
// Everything under /api requires a session, carried in the [SessionCookie] cookie or as a
// bearer token. Failures are JSON [ErrorResponse] bodies; see [StatusFor] for the status mapping.
//
// # CLI callback
//
// [OAuthHandler] serves the single callback of the CLI's localhost login flow and publishes
// the exchanged token on a channel.
package server
