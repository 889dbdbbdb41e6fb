package config

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/huh"
)

// WizardResult holds the user's choices from the wizard.
type WizardResult struct {
	ClusterName       string
	NodeName          string
	AdvertiseAddress  string
	KubernetesVersion string
	PodCIDR           string
	Encapsulation     Encapsulation
	Wireguard         bool
	NodeExporter      bool
	Otelcol           bool
	OtelEndpoint      string
}

// RunWizard asks for the settings most clusters change and returns them.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	result := &WizardResult{
		KubernetesVersion: DefaultKubernetesVersion,
		PodCIDR:           DefaultPodCIDR,
		Encapsulation:     EncapsulationVXLANCrossSubnet,
		NodeExporter:      true,
	}
	if host, err := os.Hostname(); err == nil {
		result.NodeName = host
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster name").
				Description("Lowercase letters, numbers and hyphens").
				Placeholder("my-cluster").
				Value(&result.ClusterName).
				Validate(validateClusterName),
			huh.NewInput().
				Title("Node name").
				Value(&result.NodeName),
			huh.NewInput().
				Title("Advertise address (optional)").
				Description("IP the API server listens on. Empty picks the default route address.").
				Value(&result.AdvertiseAddress).
				Validate(validateOptionalIP),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Kubernetes version").
				Value(&result.KubernetesVersion),
			huh.NewInput().
				Title("Pod network CIDR").
				Value(&result.PodCIDR).
				Validate(validateCIDR),
			huh.NewSelect[Encapsulation]().
				Title("Calico encapsulation").
				Options(
					huh.NewOption("VXLAN across subnets (recommended)", EncapsulationVXLANCrossSubnet),
					huh.NewOption("VXLAN always", EncapsulationVXLAN),
					huh.NewOption("IP-in-IP across subnets", EncapsulationIPIPCrossSubnet),
					huh.NewOption("IP-in-IP always", EncapsulationIPIP),
					huh.NewOption("None (flat network)", EncapsulationNone),
				).
				Value(&result.Encapsulation),
			huh.NewConfirm().
				Title("Encrypt pod traffic with WireGuard?").
				Value(&result.Wireguard),
		),

		huh.NewGroup(
			huh.NewConfirm().
				Title("Install Prometheus node exporter?").
				Value(&result.NodeExporter),
			huh.NewConfirm().
				Title("Install OpenTelemetry collector?").
				Value(&result.Otelcol),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("OpenTelemetry export endpoint").
				Placeholder("https://otel.example.com:4318").
				Value(&result.OtelEndpoint).
				Validate(validateURL),
		).WithHideFunc(func() bool { return !result.Otelcol }),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}
	return result, nil
}

// ToConfig converts the wizard result into a defaulted Config.
func (r *WizardResult) ToConfig() *Config {
	cfg := &Config{
		ClusterName: r.ClusterName,
		Node: NodeConfig{
			Name:             r.NodeName,
			AdvertiseAddress: r.AdvertiseAddress,
		},
		Kubernetes: KubernetesConfig{
			Version: r.KubernetesVersion,
			PodCIDR: r.PodCIDR,
		},
		Calico: CalicoConfig{
			Encapsulation: r.Encapsulation,
			Encryption:    EncryptionNone,
		},
		Monitoring: MonitoringConfig{
			NodeExporter: NodeExporterConfig{Enabled: r.NodeExporter},
			Otelcol:      OtelcolConfig{Enabled: r.Otelcol, Endpoint: r.OtelEndpoint},
		},
	}
	if r.Wireguard {
		cfg.Calico.Encryption = EncryptionWireguard
	}
	cfg.ApplyDefaults()
	return cfg
}

func validateOptionalIP(s string) error {
	if s == "" {
		return nil
	}
	if net.ParseIP(s) == nil {
		return fmt.Errorf("%q is not an IP address", s)
	}
	return nil
}

func validateCIDR(s string) error {
	if _, _, err := net.ParseCIDR(s); err != nil {
		return fmt.Errorf("%q is not a CIDR", s)
	}
	return nil
}
