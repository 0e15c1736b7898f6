// Package connection implements the realtime session manager used by the
// marketplace chat client.
//
// The Manager:
//   - Owns a single WebSocket session authenticated with a user id and token
//   - Reconnects with exponential backoff (base * 2^(n-1)) up to a bounded
//     number of attempts, then reports max_reconnect_attempts
//   - Fans inbound events (new_message, message_read, user_typing, ...) out
//     to subscribers in subscription order
//   - Notifies connection observers of every state transition, in order
//   - Correlates send_message requests with server acknowledgements
//
// Handlers run on a single dispatcher goroutine. A panicking handler is
// logged and does not affect the others.
package connection
