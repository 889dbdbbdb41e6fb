// Package labels builds the labels kubestrap sets on the Kubernetes objects
// it creates, so they can be found by cluster and component.
package labels
