package config

// Option adjusts how Load finds its inputs.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
	args       []string
}

// WithConfigFile reads path instead of searching for chassisctl.toml.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithArgs parses args instead of os.Args[1:].
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		return nil
	}
}
