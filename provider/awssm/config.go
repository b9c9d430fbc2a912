package awssm

// Config selects the AWS account and endpoint used by NewFromConfig.
// Empty fields fall back to the SDK's default resolution chain
// (environment, shared config files, instance metadata).
type Config struct {
	// Region is the AWS region of the secrets
	Region string `mapstructure:"region"`
	// Profile is the shared config profile to load credentials from
	Profile string `mapstructure:"profile"`
	// Endpoint overrides the service endpoint, e.g. for localstack
	Endpoint string `mapstructure:"endpoint"`
}

// DefaultConfig returns an empty configuration that relies on the SDK defaults
func DefaultConfig() *Config {
	return &Config{}
}
