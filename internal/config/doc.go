// Package config loads, defaults and validates the kubestrap configuration
// file, and builds a starter file through an interactive wizard.
//
// Secrets can be supplied through the environment instead of the file:
//   - KUBESTRAP_OTEL_AUTH_TOKEN
//   - KUBESTRAP_S3_ACCESS_KEY
//   - KUBESTRAP_S3_SECRET_KEY
package config
