package api

// Chat turn roles on the wire.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ChatTurn is one message in the conversation.
type ChatTurn struct {
	// Role is "user" or "agent".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// ChatRequest is the inbound chat payload. The caller's credential travels
// in the api-key header, not the body.
type ChatRequest struct {
	// OrganizationName is the tenant every tool call operates on.
	OrganizationName string `json:"organization_name"`
	// Chat holds the conversation turns in order, newest last. The last
	// turn must be from the user.
	Chat []ChatTurn `json:"chat"`
}

// ChatResponse is the agent's answer for the latest user turn.
type ChatResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HealthResponse reports service health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// VersionResponse reports build information.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}
