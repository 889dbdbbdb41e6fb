package config

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "kubestrap.yaml"

// Defaults applied by Load.
const (
	DefaultKubernetesVersion = "v1.31.2"
	DefaultPodCIDR           = "192.168.0.0/16"
	DefaultServiceCIDR       = "10.96.0.0/12"
	DefaultKubeconfigPath    = "/root/.kube/config"

	DefaultContainerdConfigPath = "/etc/containerd/config.toml"
	DefaultSandboxImage         = "registry.k8s.io/pause:3.10"

	DefaultCalicoRepository = "https://docs.tigera.io/calico/charts"
	DefaultCalicoChart      = "tigera-operator"
	DefaultCalicoVersion    = "v3.28.2"
	DefaultCalicoMTU        = 1450

	DefaultNodeExporterPort    = 9100
	DefaultNodeExporterTextDir = "/var/lib/node_exporter/textfile_collector"
	DefaultOtelcolPort         = 4317

	DefaultStateDir = "/var/lib/kubestrap/state"
	DefaultSSHPort  = 22
)

// Environment variables that override secrets in the file.
const (
	EnvOtelAuthToken = "KUBESTRAP_OTEL_AUTH_TOKEN" // #nosec G101
	EnvS3AccessKey   = "KUBESTRAP_S3_ACCESS_KEY"   // #nosec G101
	EnvS3SecretKey   = "KUBESTRAP_S3_SECRET_KEY"   // #nosec G101
)
