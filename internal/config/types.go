package config

// Config is the root of kubestrap.yaml.
type Config struct {
	ClusterName string           `yaml:"cluster_name"`
	Node        NodeConfig       `yaml:"node"`
	Kubernetes  KubernetesConfig `yaml:"kubernetes"`
	Containerd  ContainerdConfig `yaml:"containerd"`
	Calico      CalicoConfig     `yaml:"calico"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	State       StateConfig      `yaml:"state"`
}

// NodeConfig describes the node being bootstrapped.
type NodeConfig struct {
	Name             string `yaml:"name"`
	AdvertiseAddress string `yaml:"advertise_address"`

	// SSH runs every command on a remote host when set. Without it commands
	// run on the local machine.
	SSH *SSHConfig `yaml:"ssh,omitempty"`
}

// SSHConfig holds the connection settings for a remote node.
type SSHConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port,omitempty"`
	User           string `yaml:"user"`
	PrivateKeyPath string `yaml:"private_key_path"`
	KnownHostsPath string `yaml:"known_hosts_path,omitempty"`
}

// KubernetesConfig configures kubeadm.
type KubernetesConfig struct {
	Version              string `yaml:"version"`
	PodCIDR              string `yaml:"pod_cidr"`
	ServiceCIDR          string `yaml:"service_cidr"`
	ControlPlaneEndpoint string `yaml:"control_plane_endpoint,omitempty"`
	KubeconfigPath       string `yaml:"kubeconfig_path"`
}

// ContainerdConfig configures the container runtime.
type ContainerdConfig struct {
	ConfigPath   string `yaml:"config_path"`
	SandboxImage string `yaml:"sandbox_image,omitempty"`

	// InstallCommand is run when the containerd binary is missing.
	InstallCommand string `yaml:"install_command,omitempty"`
}

// CalicoConfig configures the CNI.
type CalicoConfig struct {
	Chart         ChartConfig   `yaml:"chart"`
	Encapsulation Encapsulation `yaml:"encapsulation"`
	MTU           int           `yaml:"mtu,omitempty"`
	Encryption    Encryption    `yaml:"encryption"`
}

// ChartConfig selects a Helm chart.
type ChartConfig struct {
	Repository string `yaml:"repository"`
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
}

// Encapsulation is the Calico IP pool encapsulation mode.
type Encapsulation string

// Supported encapsulation modes.
const (
	EncapsulationVXLAN            Encapsulation = "VXLAN"
	EncapsulationVXLANCrossSubnet Encapsulation = "VXLANCrossSubnet"
	EncapsulationIPIP             Encapsulation = "IPIP"
	EncapsulationIPIPCrossSubnet  Encapsulation = "IPIPCrossSubnet"
	EncapsulationNone             Encapsulation = "None"
)

// Encryption is the pod-to-pod traffic encryption mode.
type Encryption string

// Supported encryption modes.
const (
	EncryptionNone      Encryption = "none"
	EncryptionWireguard Encryption = "wireguard"
)

// MonitoringConfig configures the node agents.
type MonitoringConfig struct {
	NodeExporter NodeExporterConfig `yaml:"node_exporter"`
	Otelcol      OtelcolConfig      `yaml:"otelcol"`
}

// NodeExporterConfig configures the Prometheus node exporter.
type NodeExporterConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ListenPort  int    `yaml:"listen_port"`
	TextfileDir string `yaml:"textfile_dir"`
}

// OtelcolConfig configures the OpenTelemetry collector.
type OtelcolConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AuthToken  string `yaml:"auth_token,omitempty"`
	ListenPort int    `yaml:"listen_port"`
}

// StateConfig selects where execution records are kept.
type StateConfig struct {
	Backend StateBackend `yaml:"backend"`
	Dir     string       `yaml:"dir,omitempty"`
	S3      *S3Config    `yaml:"s3,omitempty"`
}

// StateBackend names a state store implementation.
type StateBackend string

// Supported state backends.
const (
	StateBackendFile StateBackend = "file"
	StateBackendS3   StateBackend = "s3"
)

// S3Config configures the S3-compatible state backend.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
}
