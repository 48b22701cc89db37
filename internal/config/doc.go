// Package config loads the actuation daemon configuration.
//
// Values come from, in increasing precedence: built-in defaults matching the
// reference airframe, a YAML file, and ACTUATORX_* environment variables.
// The result is validated once and then copied into immutable components.
package config
