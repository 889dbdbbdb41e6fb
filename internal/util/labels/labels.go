package labels

// Standard label keys set on Kubernetes objects kubestrap creates.
const (
	// KeyCluster identifies which cluster an object belongs to
	KeyCluster = "kubestrap.io/cluster"

	// KeyManagedBy identifies the management system
	KeyManagedBy = "app.kubernetes.io/managed-by"

	// KeyComponent identifies the bootstrap component that created the object
	KeyComponent = "app.kubernetes.io/component"
)

// ManagedByKubestrap is the KeyManagedBy value of kubestrap-created objects.
const ManagedByKubestrap = "kubestrap"

// LabelBuilder provides a fluent interface for building object labels.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a new label builder with the cluster name pre-set.
func NewLabelBuilder(clusterName string) *LabelBuilder {
	lb := &LabelBuilder{
		labels: map[string]string{
			KeyManagedBy: ManagedByKubestrap,
		},
	}
	if clusterName != "" {
		lb.labels[KeyCluster] = clusterName
	}
	return lb
}

// WithComponent adds a component label (e.g., "cni").
func (lb *LabelBuilder) WithComponent(component string) *LabelBuilder {
	lb.labels[KeyComponent] = component
	return lb
}

// Merge adds all labels from the provided map.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	result := make(map[string]string, len(lb.labels))
	for k, v := range lb.labels {
		result[k] = v
	}
	return result
}

// SelectorForCluster returns a label selector string for all objects in a cluster.
func SelectorForCluster(clusterName string) string {
	return KeyCluster + "=" + clusterName
}
