package k8s

import (
	"context"
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// Client talks to the Kubernetes API server of the cluster being bootstrapped.
type Client struct {
	clientset kubernetes.Interface
	dynamic   dynamic.Interface
	mapper    meta.RESTMapper
}

// NewFromKubeconfigFile creates a Client from a kubeconfig file.
func NewFromKubeconfigFile(path string) (*Client, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read kubeconfig %s: %w", path, err)
	}
	return NewFromKubeconfig(data)
}

// NewFromKubeconfig creates a Client from kubeconfig bytes. API discovery is
// deferred until the first apply, so the API server does not need to be up yet.
func NewFromKubeconfig(kubeconfig []byte) (*Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}
	return NewFromRESTConfig(restConfig)
}

// NewFromRESTConfig creates a Client from a REST config.
func NewFromRESTConfig(restConfig *rest.Config) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return &Client{
		clientset: clientset,
		dynamic:   dynamicClient,
		mapper:    mapper,
	}, nil
}

// NewFromClients creates a Client from pre-configured clients.
func NewFromClients(clientset kubernetes.Interface, dynamicClient dynamic.Interface, mapper meta.RESTMapper) *Client {
	return &Client{
		clientset: clientset,
		dynamic:   dynamicClient,
		mapper:    mapper,
	}
}

// RefreshDiscovery drops cached API discovery so that kinds from newly
// installed CRDs can be mapped.
func (c *Client) RefreshDiscovery(_ context.Context) error {
	if r, ok := c.mapper.(meta.ResettableRESTMapper); ok {
		r.Reset()
	}
	return nil
}

// ServerVersion returns the git version reported by the API server.
func (c *Client) ServerVersion(_ context.Context) (string, error) {
	info, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	return info.GitVersion, nil
}
