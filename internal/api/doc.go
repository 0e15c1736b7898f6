// Package api provides the REST client for the messaging backend.
//
// Endpoints:
//   - GET  /conversations
//   - GET  /conversations/{id}/messages?page=&limit=
//   - POST /conversations/{id}/messages
//
// Requests carry the session token as a bearer token. The realtime channel
// is handled by package connection; this client backfills history and is a
// fallback for sends while the socket is down.
package api
