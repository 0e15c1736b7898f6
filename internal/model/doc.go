// Package model defines the messaging records shared by the realtime session,
// the history API client and the archive.
//
// Conventions:
//   - IDs: model.ID, decoded from JSON strings or numbers
//   - Timestamps: time.Time, RFC 3339 on the wire
//   - Wire field names are camelCase (senderId, conversationId)
package model
