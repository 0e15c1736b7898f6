// Package chat layers typed messaging operations over a realtime session.
//
// The session manager deals in raw JSON payloads. This package decodes them
// into model records (OnNewMessage, OnUserTyping, ...), turns acknowledged
// sends into model.Message values, and keeps joined conversations joined
// across reconnects (Rooms).
package chat
