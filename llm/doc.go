// Package llm defines the chat-completion provider abstraction: the
// message and tool-call wire model, the Provider interface, and the
// structured error codes providers map upstream failures onto.
package llm
