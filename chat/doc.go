// Package chat wires the Twitch IRC connection to the ask pipeline.
//
// Start connects with the configured bot credentials, joins TWITCH_CHANNEL,
// and handles each incoming message twice over:
//   - every line is appended to the chat_messages transcript when a database
//     is configured (an operational log; never read back into prompts), and
//   - lines starting with the command prefix are dispatched fire-and-forget
//     to the pipeline, whose reply is split into message-length chunks and
//     sent back with the requester's mention.
//
// Credentials: the IRC client requires a bot username and a user OAuth token
// with chat:read/chat:edit scopes; the Helix app token used elsewhere cannot
// authenticate IRC.
package chat
