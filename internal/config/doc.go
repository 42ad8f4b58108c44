// Package config provides configuration loading and validation for the speech service.
// It reads an optional YAML file over built-in defaults and applies overrides from
// the environment (and a local .env file) for credentials and endpoints.
package config
