// Package helm renders Helm charts to plain Kubernetes manifests. Charts are
// downloaded from their repositories at runtime and rendered client-side, so
// no release state is stored in the cluster.
package helm
