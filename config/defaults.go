package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		LLM:      DefaultLLMConfig(),
		Identity: DefaultIdentityConfig(),
		Agent:    DefaultAgentConfig(),
		Audit:    DefaultAuditConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultLLMConfig returns the default provider configuration.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		APIVersion: "2024-06-01",
		Timeout:    2 * time.Minute,
	}
}

// DefaultIdentityConfig returns the default identity server configuration.
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		Timeout: 30 * time.Second,
	}
}

// DefaultAgentConfig returns the default orchestration configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations: 10,
		HistoryWindow: 5,
		ToolTimeout:   30 * time.Second,
	}
}

// DefaultAuditConfig returns the default audit trail configuration.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:   true,
		Path:      "orgagent_audit.db",
		QueueSize: 1000,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}
