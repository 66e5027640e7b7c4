package config

type Config interface {
	EnvConfig
	UpstreamConfig
	TokenConfig
}

type mainConfig struct {
	EnvVars
	Upstream
	Tokens
}

func New() Config {
	return mainConfig{}
}
