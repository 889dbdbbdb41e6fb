// Package k8s wraps client-go for the bootstrap phases that talk to the
// freshly created cluster: server-side apply of rendered manifests and the
// readiness probes used to gate phase completion.
package k8s
