package calico

import (
	"bytes"
	"fmt"

	"sigs.k8s.io/yaml"
)

// NetworkOptions describes the pod network Calico provides.
type NetworkOptions struct {
	PodCIDR       string
	Encapsulation string
	MTU           int
	Wireguard     bool
}

// RenderResources renders the operator custom resources: the default
// Installation and, with WireGuard enabled, the default FelixConfiguration.
// objLabels may be nil.
func RenderResources(opts NetworkOptions, objLabels map[string]string) ([]byte, error) {
	if opts.PodCIDR == "" {
		return nil, fmt.Errorf("pod CIDR is required")
	}
	encapsulation := opts.Encapsulation
	if encapsulation == "" {
		encapsulation = "VXLANCrossSubnet"
	}

	calicoNetwork := map[string]any{
		"ipPools": []any{
			map[string]any{
				"name":          "default-ipv4-ippool",
				"cidr":          opts.PodCIDR,
				"blockSize":     26,
				"encapsulation": encapsulation,
				"natOutgoing":   "Enabled",
				"nodeSelector":  "all()",
			},
		},
	}
	if opts.MTU > 0 {
		calicoNetwork["mtu"] = opts.MTU
	}

	docs := []map[string]any{{
		"apiVersion": "operator.tigera.io/v1",
		"kind":       "Installation",
		"metadata":   objectMeta("default", objLabels),
		"spec": map[string]any{
			"cni":           map[string]any{"type": "Calico"},
			"calicoNetwork": calicoNetwork,
		},
	}}

	if opts.Wireguard {
		docs = append(docs, map[string]any{
			"apiVersion": "crd.projectcalico.org/v1",
			"kind":       "FelixConfiguration",
			"metadata":   objectMeta("default", objLabels),
			"spec":       map[string]any{"wireguardEnabled": true},
		})
	}

	var buf bytes.Buffer
	for i, doc := range docs {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", doc["kind"], err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func objectMeta(name string, objLabels map[string]string) map[string]any {
	meta := map[string]any{"name": name}
	if len(objLabels) > 0 {
		meta["labels"] = objLabels
	}
	return meta
}
