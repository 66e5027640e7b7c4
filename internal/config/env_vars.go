package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	baseURLVar   = "BASE_URL"
	appSchemeVar = "APP_SCHEME"
	jwtSecretVar = "JWT_SECRET"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetAppScheme() string
	GetSigningSecret() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Attendance Auth")
}

// GetBaseURL returns the public base URL of the auth service, used for the
// upstream redirect URI and as the allowed web origin
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetAppScheme returns the native app URI scheme that the callback redirects to
func (EnvVars) GetAppScheme() string {
	return GetEnv(appSchemeVar, "")
}

// GetSigningSecret returns the process-wide secret used to sign session tokens
func (EnvVars) GetSigningSecret() string {
	return GetEnv(jwtSecretVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
