// Package config holds the application configuration and the interface of
// graph file formats. Configuration is YAML with ${ENV} expansion, validated
// after loading.
package config
