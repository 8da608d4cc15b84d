package config

import "errors"

// Package-specific errors
var (
	// ErrReadConfig is returned when a config or dotenv file cannot be read
	ErrReadConfig = errors.New("failed to read config file")

	// ErrParseConfig is returned when the YAML config file is malformed
	ErrParseConfig = errors.New("failed to parse config file")

	// ErrParseEnv is returned when environment variables cannot be parsed into the config struct
	ErrParseEnv = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned by Validate for settings that cannot be defaulted
	ErrInvalidConfig = errors.New("invalid configuration")
)
