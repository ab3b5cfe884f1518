// Package api defines the wire types of the HTTP surface.
//
// The conversational endpoint accepts a chat transcript plus an
// organization name and returns the agent's reply for the latest user
// turn. The caller's credential travels in the api-key header and never
// appears in request or response bodies.
package api
