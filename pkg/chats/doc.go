// Package chats provides the provider-agnostic conversation model that the
// agent loop and the model adapters share.
//
// It is organized into sub-packages:
//   - [github.com/germanamz/persona/pkg/chats/role]: who sent a message (system, user, assistant, tool)
//   - [github.com/germanamz/persona/pkg/chats/content]: message parts (text, tool call, tool result)
//   - [github.com/germanamz/persona/pkg/chats/message]: a role, a sender and its parts
//   - [github.com/germanamz/persona/pkg/chats/chat]: the growing transcript of one agent run
//
// No provider or API code lives here.
package chats
