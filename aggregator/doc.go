// Package aggregator implements the single source of truth for conversation
// state shared by the conversational agent and the background executor. One
// mutex per session guards every read-modify-write, so neither agent ever
// observes a half-updated context.
//
// Besides raw state it provides the per-tool TTL result cache, the single-slot
// "waiting on task" handshake, conversation-flow bookkeeping and the 90%
// TTS-playback turn-taking rule.
package aggregator
