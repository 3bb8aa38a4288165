package config

// TracingConfig holds OTLP tracing configuration.
//
// Traces are exported over OTLP/HTTP to a local collector or agent.
// See internal/observability for the tracer setup.
type TracingConfig struct {
	// AgentHost is the OTLP/HTTP endpoint (default: localhost:4318)
	AgentHost string `mapstructure:"agent_host"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment"`
	// ServiceName is the service name reported on spans (default: reviewly)
	ServiceName string `mapstructure:"service_name"`
}
