package kubeadm

import (
	"bytes"
	"fmt"

	"sigs.k8s.io/yaml"
)

const (
	apiVersion        = "kubeadm.k8s.io/v1beta4"
	kubeletAPIVersion = "kubelet.config.k8s.io/v1beta1"

	// DefaultCRISocket is the containerd socket kubelet talks to.
	DefaultCRISocket = "unix:///run/containerd/containerd.sock"

	// DefaultBindPort is the API server port.
	DefaultBindPort = 6443
)

type typeMeta struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
}

type initConfiguration struct {
	typeMeta         `json:",inline"`
	LocalAPIEndpoint apiEndpoint      `json:"localAPIEndpoint"`
	NodeRegistration nodeRegistration `json:"nodeRegistration"`
}

type apiEndpoint struct {
	AdvertiseAddress string `json:"advertiseAddress,omitempty"`
	BindPort         int32  `json:"bindPort"`
}

type nodeRegistration struct {
	Name      string `json:"name,omitempty"`
	CRISocket string `json:"criSocket"`
}

type clusterConfiguration struct {
	typeMeta             `json:",inline"`
	ClusterName          string     `json:"clusterName"`
	KubernetesVersion    string     `json:"kubernetesVersion"`
	ControlPlaneEndpoint string     `json:"controlPlaneEndpoint,omitempty"`
	Networking           networking `json:"networking"`
}

type networking struct {
	PodSubnet     string `json:"podSubnet"`
	ServiceSubnet string `json:"serviceSubnet"`
}

type kubeletConfiguration struct {
	typeMeta     `json:",inline"`
	CgroupDriver string `json:"cgroupDriver"`
}

// RenderConfig renders the kubeadm init configuration as a multi-document
// YAML stream: InitConfiguration, ClusterConfiguration and a
// KubeletConfiguration selecting the systemd cgroup driver.
func RenderConfig(opts Options) ([]byte, error) {
	if opts.KubernetesVersion == "" {
		return nil, fmt.Errorf("kubernetes version is required")
	}
	if opts.PodCIDR == "" || opts.ServiceCIDR == "" {
		return nil, fmt.Errorf("pod and service CIDRs are required")
	}

	criSocket := opts.CRISocket
	if criSocket == "" {
		criSocket = DefaultCRISocket
	}

	docs := []any{
		initConfiguration{
			typeMeta: typeMeta{APIVersion: apiVersion, Kind: "InitConfiguration"},
			LocalAPIEndpoint: apiEndpoint{
				AdvertiseAddress: opts.AdvertiseAddress,
				BindPort:         DefaultBindPort,
			},
			NodeRegistration: nodeRegistration{
				Name:      opts.NodeName,
				CRISocket: criSocket,
			},
		},
		clusterConfiguration{
			typeMeta:             typeMeta{APIVersion: apiVersion, Kind: "ClusterConfiguration"},
			ClusterName:          opts.ClusterName,
			KubernetesVersion:    opts.KubernetesVersion,
			ControlPlaneEndpoint: opts.ControlPlaneEndpoint,
			Networking: networking{
				PodSubnet:     opts.PodCIDR,
				ServiceSubnet: opts.ServiceCIDR,
			},
		},
		kubeletConfiguration{
			typeMeta:     typeMeta{APIVersion: kubeletAPIVersion, Kind: "KubeletConfiguration"},
			CgroupDriver: "systemd",
		},
	}

	var buf bytes.Buffer
	for i, doc := range docs {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal kubeadm config: %w", err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
