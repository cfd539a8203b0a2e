// Package config loads the bridge configuration.
//
// Load applies defaults, then the YAML file, then GRAYLOGIC_* environment
// overrides, and finally validates the result, reporting every problem in a
// single error. Secrets (GRAYLOGIC_CLOUD_TOKEN, GRAYLOGIC_API_JWT_SECRET)
// are best supplied through the environment so the file can stay
// world-readable inside the container image.
//
//	cfg, err := config.Load(os.Getenv("GRAYLOGIC_CONFIG"))
package config
