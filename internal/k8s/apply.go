package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/yaml"
)

// FieldManager is the server-side apply field manager used by kubestrap.
const FieldManager = "kubestrap"

// ApplyManifests applies multi-document YAML using server-side apply with
// forced conflicts, so re-applying the same manifests is a no-op.
// Empty documents are skipped.
func (c *Client) ApplyManifests(ctx context.Context, manifests []byte) error {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)

	for doc := 0; ; doc++ {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode manifest document %d: %w", doc, err)
		}
		if len(obj.Object) == 0 {
			continue
		}

		if err := c.ApplyObject(ctx, &obj); err != nil {
			return fmt.Errorf("failed to apply %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
		}
	}
}

// ApplyObject applies a single object using server-side apply.
func (c *Client) ApplyObject(ctx context.Context, obj *unstructured.Unstructured) error {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return fmt.Errorf("object has no kind set")
	}

	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return fmt.Errorf("failed to get REST mapping for %v: %w", gvk, err)
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal object to JSON: %w", err)
	}

	force := true
	opts := metav1.PatchOptions{FieldManager: FieldManager, Force: &force}

	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		namespace := obj.GetNamespace()
		if namespace == "" {
			namespace = metav1.NamespaceDefault
		}
		_, err = c.dynamic.Resource(mapping.Resource).Namespace(namespace).
			Patch(ctx, obj.GetName(), types.ApplyPatchType, data, opts)
	} else {
		_, err = c.dynamic.Resource(mapping.Resource).
			Patch(ctx, obj.GetName(), types.ApplyPatchType, data, opts)
	}
	if err != nil {
		return fmt.Errorf("server-side apply failed: %w", err)
	}
	return nil
}
