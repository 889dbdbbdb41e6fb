package k8s

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// The readiness checks below return (false, nil) while the object does not
// exist yet, and an error only for failures talking to the API server.

// DaemonSetReady reports whether every scheduled pod of the DaemonSet is
// ready and available.
func (c *Client) DaemonSetReady(ctx context.Context, namespace, name string) (bool, error) {
	ds, err := c.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get daemonset %s/%s: %w", namespace, name, err)
	}
	return isDaemonSetReady(ds), nil
}

// DeploymentReady reports whether the Deployment has all replicas updated
// and available.
func (c *Client) DeploymentReady(ctx context.Context, namespace, name string) (bool, error) {
	d, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	return isDeploymentReady(d), nil
}

// NodeReady reports whether the named node has condition Ready=True.
func (c *Client) NodeReady(ctx context.Context, name string) (bool, error) {
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get node %s: %w", name, err)
	}
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue, nil
		}
	}
	return false, nil
}

// ConditionTrue reports whether the object identified by gvr has a status
// condition of the given type with status "True". namespace is empty for
// cluster-scoped resources.
func (c *Client) ConditionTrue(ctx context.Context, gvr schema.GroupVersionResource, namespace, name, conditionType string) (bool, error) {
	var (
		obj *unstructured.Unstructured
		err error
	)
	if namespace == "" {
		obj, err = c.dynamic.Resource(gvr).Get(ctx, name, metav1.GetOptions{})
	} else {
		obj, err = c.dynamic.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	}
	if apierrors.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s %s: %w", gvr.Resource, name, err)
	}

	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return false, nil
	}
	for _, raw := range conditions {
		cond, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if cond["type"] == conditionType {
			return cond["status"] == string(metav1.ConditionTrue), nil
		}
	}
	return false, nil
}

func isDaemonSetReady(ds *appsv1.DaemonSet) bool {
	return ds.Status.DesiredNumberScheduled > 0 &&
		ds.Status.ObservedGeneration >= ds.Generation &&
		ds.Status.NumberReady == ds.Status.DesiredNumberScheduled &&
		ds.Status.NumberAvailable == ds.Status.DesiredNumberScheduled
}

func isDeploymentReady(d *appsv1.Deployment) bool {
	want := int32(1)
	if d.Spec.Replicas != nil {
		want = *d.Spec.Replicas
	}
	if d.Status.UpdatedReplicas != want || d.Status.AvailableReplicas != want {
		return false
	}
	for _, cond := range d.Status.Conditions {
		if cond.Type == appsv1.DeploymentAvailable && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}
