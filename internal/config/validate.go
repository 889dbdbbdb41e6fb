package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var validEncapsulations = map[Encapsulation]bool{
	EncapsulationVXLAN:            true,
	EncapsulationVXLANCrossSubnet: true,
	EncapsulationIPIP:             true,
	EncapsulationIPIPCrossSubnet:  true,
	EncapsulationNone:             true,
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if err := validateClusterName(c.ClusterName); err != nil {
		errs = append(errs, fmt.Errorf("cluster_name: %w", err))
	}
	if c.Node.Name == "" {
		errs = append(errs, errors.New("node.name is required"))
	}
	if c.Node.AdvertiseAddress != "" && net.ParseIP(c.Node.AdvertiseAddress) == nil {
		errs = append(errs, fmt.Errorf("node.advertise_address %q is not an IP address", c.Node.AdvertiseAddress))
	}
	if ssh := c.Node.SSH; ssh != nil {
		if ssh.Host == "" {
			errs = append(errs, errors.New("node.ssh.host is required"))
		}
		if ssh.PrivateKeyPath == "" {
			errs = append(errs, errors.New("node.ssh.private_key_path is required"))
		}
		if err := validatePort(ssh.Port); err != nil {
			errs = append(errs, fmt.Errorf("node.ssh.port: %w", err))
		}
	}

	errs = append(errs, c.validateKubernetes()...)
	errs = append(errs, c.validateCalico()...)
	errs = append(errs, c.validateMonitoring()...)
	errs = append(errs, c.validateState()...)

	return errors.Join(errs...)
}

func (c *Config) validateKubernetes() []error {
	var errs []error
	k := c.Kubernetes
	if !strings.HasPrefix(k.Version, "v") {
		errs = append(errs, fmt.Errorf("kubernetes.version %q must start with 'v'", k.Version))
	}

	_, pod, err := net.ParseCIDR(k.PodCIDR)
	if err != nil {
		errs = append(errs, fmt.Errorf("kubernetes.pod_cidr: invalid CIDR %q", k.PodCIDR))
	}
	_, svc, err := net.ParseCIDR(k.ServiceCIDR)
	if err != nil {
		errs = append(errs, fmt.Errorf("kubernetes.service_cidr: invalid CIDR %q", k.ServiceCIDR))
	}
	if pod != nil && svc != nil && cidrsOverlap(pod, svc) {
		errs = append(errs, fmt.Errorf("kubernetes.pod_cidr %s overlaps service_cidr %s", pod, svc))
	}
	if k.KubeconfigPath == "" {
		errs = append(errs, errors.New("kubernetes.kubeconfig_path is required"))
	}
	return errs
}

func (c *Config) validateCalico() []error {
	var errs []error
	cal := c.Calico
	if !validEncapsulations[cal.Encapsulation] {
		errs = append(errs, fmt.Errorf("calico.encapsulation %q must be one of VXLAN, VXLANCrossSubnet, IPIP, IPIPCrossSubnet, None", cal.Encapsulation))
	}
	if cal.Encryption != EncryptionNone && cal.Encryption != EncryptionWireguard {
		errs = append(errs, fmt.Errorf("calico.encryption %q must be none or wireguard", cal.Encryption))
	}
	if cal.MTU < 576 || cal.MTU > 9000 {
		errs = append(errs, fmt.Errorf("calico.mtu %d out of range 576-9000", cal.MTU))
	}
	if cal.Chart.Repository == "" || cal.Chart.Name == "" {
		errs = append(errs, errors.New("calico.chart repository and name are required"))
	}
	return errs
}

func (c *Config) validateMonitoring() []error {
	var errs []error
	m := c.Monitoring
	if m.NodeExporter.Enabled {
		if err := validatePort(m.NodeExporter.ListenPort); err != nil {
			errs = append(errs, fmt.Errorf("monitoring.node_exporter.listen_port: %w", err))
		}
	}
	if m.Otelcol.Enabled {
		if err := validatePort(m.Otelcol.ListenPort); err != nil {
			errs = append(errs, fmt.Errorf("monitoring.otelcol.listen_port: %w", err))
		}
		if err := validateURL(m.Otelcol.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("monitoring.otelcol.endpoint: %w", err))
		}
	}
	if m.NodeExporter.Enabled && m.Otelcol.Enabled && m.NodeExporter.ListenPort == m.Otelcol.ListenPort {
		errs = append(errs, fmt.Errorf("monitoring: node_exporter and otelcol both listen on port %d", m.Otelcol.ListenPort))
	}
	return errs
}

func (c *Config) validateState() []error {
	switch c.State.Backend {
	case StateBackendFile:
		if c.State.Dir == "" {
			return []error{errors.New("state.dir is required for the file backend")}
		}
	case StateBackendS3:
		s3 := c.State.S3
		if s3 == nil {
			return []error{errors.New("state.s3 is required for the s3 backend")}
		}
		var errs []error
		if s3.Bucket == "" {
			errs = append(errs, errors.New("state.s3.bucket is required"))
		}
		if s3.Region == "" {
			errs = append(errs, errors.New("state.s3.region is required"))
		}
		if s3.Endpoint != "" {
			if err := validateURL(s3.Endpoint); err != nil {
				errs = append(errs, fmt.Errorf("state.s3.endpoint: %w", err))
			}
		}
		return errs
	default:
		return []error{fmt.Errorf("state.backend %q must be file or s3", c.State.Backend)}
	}
	return nil
}

func validateClusterName(s string) error {
	if s == "" {
		return fmt.Errorf("cluster name is required")
	}
	if len(s) > 63 {
		return fmt.Errorf("cluster name must be 63 characters or less")
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("cluster name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return fmt.Errorf("cluster name cannot start or end with a hyphen")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}

func cidrsOverlap(a, b *net.IPNet) bool {
	return a.Contains(b.IP) || b.Contains(a.IP)
}
