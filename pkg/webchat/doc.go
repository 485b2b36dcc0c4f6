// Package webchat serves assistant sessions to browsers.
//
// Routes:
//   - POST /api/assistant/sessions opens a session; GET .../{id} reads it.
//   - POST .../{id}/identity, .../{id}/messages, .../{id}/rating and
//     .../{id}/complete drive the session's phases.
//   - GET /ws?conv_id= streams a snapshot then every session event.
//   - /api/chat/conversations and /api/chat/messages are the persistence
//     routes a proxy-mode client writes through; they are mounted only when
//     the server owns a chat store.
package webchat
