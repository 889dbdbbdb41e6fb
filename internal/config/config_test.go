package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
cluster_name: lab
node:
  name: cp-1
`

func TestLoadFromBytes_Defaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "lab", cfg.ClusterName)
	assert.Equal(t, DefaultKubernetesVersion, cfg.Kubernetes.Version)
	assert.Equal(t, DefaultPodCIDR, cfg.Kubernetes.PodCIDR)
	assert.Equal(t, DefaultServiceCIDR, cfg.Kubernetes.ServiceCIDR)
	assert.Equal(t, DefaultKubeconfigPath, cfg.Kubernetes.KubeconfigPath)
	assert.Equal(t, DefaultContainerdConfigPath, cfg.Containerd.ConfigPath)
	assert.Equal(t, DefaultCalicoChart, cfg.Calico.Chart.Name)
	assert.Equal(t, EncapsulationVXLANCrossSubnet, cfg.Calico.Encapsulation)
	assert.Equal(t, EncryptionNone, cfg.Calico.Encryption)
	assert.Equal(t, DefaultCalicoMTU, cfg.Calico.MTU)
	assert.Equal(t, DefaultNodeExporterPort, cfg.Monitoring.NodeExporter.ListenPort)
	assert.Equal(t, DefaultOtelcolPort, cfg.Monitoring.Otelcol.ListenPort)
	assert.Equal(t, StateBackendFile, cfg.State.Backend)
	assert.Equal(t, DefaultStateDir, cfg.State.Dir)
	assert.Nil(t, cfg.Node.SSH)
}

func TestLoadFromBytes_Full(t *testing.T) {
	data := []byte(`
cluster_name: prod
node:
  name: cp-1
  advertise_address: 10.0.0.10
  ssh:
    host: 10.0.0.10
    private_key_path: /root/.ssh/id_ed25519
kubernetes:
  version: v1.30.4
  pod_cidr: 10.244.0.0/16
calico:
  encapsulation: IPIP
  encryption: wireguard
  mtu: 1420
monitoring:
  node_exporter:
    enabled: true
  otelcol:
    enabled: true
    endpoint: https://otel.example.com:4318
state:
  backend: s3
  s3:
    bucket: kubestrap-state
    region: eu-central-1
    endpoint: https://s3.example.com
    path_style: true
`)
	cfg, err := LoadFromBytes(data)
	require.NoError(t, err)

	require.NotNil(t, cfg.Node.SSH)
	assert.Equal(t, DefaultSSHPort, cfg.Node.SSH.Port)
	assert.Equal(t, "root", cfg.Node.SSH.User)
	assert.Equal(t, "v1.30.4", cfg.Kubernetes.Version)
	assert.Equal(t, EncapsulationIPIP, cfg.Calico.Encapsulation)
	assert.Equal(t, EncryptionWireguard, cfg.Calico.Encryption)
	assert.Equal(t, 1420, cfg.Calico.MTU)
	assert.Equal(t, "kubestrap/prod", cfg.State.S3.Prefix)
	assert.Empty(t, cfg.State.Dir)
}

func TestLoadFromBytes_EnvSecrets(t *testing.T) {
	t.Setenv(EnvOtelAuthToken, "otel-token")
	t.Setenv(EnvS3AccessKey, "access")
	t.Setenv(EnvS3SecretKey, "secret")

	cfg, err := LoadFromBytes([]byte(minimalConfig + `
monitoring:
  otelcol:
    enabled: true
    endpoint: http://collector:4318
    auth_token: from-file
state:
  backend: s3
  s3:
    bucket: b
    region: r
`))
	require.NoError(t, err)
	assert.Equal(t, "otel-token", cfg.Monitoring.Otelcol.AuthToken)
	assert.Equal(t, "access", cfg.State.S3.AccessKey)
	assert.Equal(t, "secret", cfg.State.S3.SecretKey)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("cluster_name: [broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	_, err = Parse([]byte("cluster_name: lab\nunknown_key: 1\n"))
	require.Error(t, err, "unknown keys are rejected")

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.ClusterName)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadFromBytes([]byte(minimalConfig))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing cluster name", func(c *Config) { c.ClusterName = "" }, "cluster_name"},
		{"uppercase cluster name", func(c *Config) { c.ClusterName = "Lab" }, "lowercase"},
		{"hyphen prefix", func(c *Config) { c.ClusterName = "-lab" }, "hyphen"},
		{"bad advertise address", func(c *Config) { c.Node.AdvertiseAddress = "cp-1" }, "advertise_address"},
		{"bad pod cidr", func(c *Config) { c.Kubernetes.PodCIDR = "10.0.0.0" }, "pod_cidr"},
		{"overlapping cidrs", func(c *Config) { c.Kubernetes.PodCIDR = "10.96.0.0/16" }, "overlaps"},
		{"version prefix", func(c *Config) { c.Kubernetes.Version = "1.31.2" }, "must start with 'v'"},
		{"bad encapsulation", func(c *Config) { c.Calico.Encapsulation = "GRE" }, "calico.encapsulation"},
		{"bad encryption", func(c *Config) { c.Calico.Encryption = "ipsec" }, "calico.encryption"},
		{"mtu too small", func(c *Config) { c.Calico.MTU = 100 }, "calico.mtu"},
		{"otel without endpoint", func(c *Config) { c.Monitoring.Otelcol.Enabled = true }, "otelcol.endpoint"},
		{"otel endpoint scheme", func(c *Config) {
			c.Monitoring.Otelcol.Enabled = true
			c.Monitoring.Otelcol.Endpoint = "grpc://collector:4317"
		}, "http or https"},
		{"port clash", func(c *Config) {
			c.Monitoring.NodeExporter.Enabled = true
			c.Monitoring.Otelcol.Enabled = true
			c.Monitoring.Otelcol.Endpoint = "http://collector"
			c.Monitoring.Otelcol.ListenPort = c.Monitoring.NodeExporter.ListenPort
		}, "both listen"},
		{"bad port", func(c *Config) {
			c.Monitoring.NodeExporter.Enabled = true
			c.Monitoring.NodeExporter.ListenPort = 70000
		}, "listen_port"},
		{"unknown backend", func(c *Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"s3 without settings", func(c *Config) { c.State.Backend = StateBackendS3 }, "state.s3 is required"},
		{"s3 without bucket", func(c *Config) {
			c.State.Backend = StateBackendS3
			c.State.S3 = &S3Config{Region: "eu"}
		}, "bucket"},
		{"ssh without key", func(c *Config) { c.Node.SSH = &SSHConfig{Host: "h", Port: 22} }, "private_key_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster_name")
	assert.Contains(t, err.Error(), "node.name")
	assert.Contains(t, err.Error(), "state.backend")
}

func TestWriteFileAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", DefaultConfigFilename)
	cfg := (&WizardResult{
		ClusterName:       "lab",
		NodeName:          "cp-1",
		KubernetesVersion: "v1.31.2",
		PodCIDR:           "10.244.0.0/16",
		Encapsulation:     EncapsulationVXLAN,
		Wireguard:         true,
		NodeExporter:      true,
	}).ToConfig()

	require.NoError(t, WriteFile(cfg, path, false))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	err = WriteFile(cfg, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, WriteFile(cfg, path, true))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, EncryptionWireguard, loaded.Calico.Encryption)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWizardValidators(t *testing.T) {
	assert.NoError(t, validateOptionalIP(""))
	assert.NoError(t, validateOptionalIP("10.0.0.1"))
	assert.Error(t, validateOptionalIP("cp-1"))
	assert.NoError(t, validateCIDR("10.244.0.0/16"))
	assert.Error(t, validateCIDR("10.244.0.0"))
}

func TestLoadTimeouts(t *testing.T) {
	timeouts := LoadTimeouts()
	assert.Equal(t, 3, timeouts.RetryMaxAttempts)
	assert.Equal(t, 5*time.Minute, timeouts.ControlPlane)
	assert.Equal(t, 60, timeouts.PollAttempts(timeouts.ControlPlane))

	t.Setenv("KUBESTRAP_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("KUBESTRAP_TIMEOUT_CNI", "30s")
	t.Setenv("KUBESTRAP_TIMEOUT_READINESS_INTERVAL", "10s")
	t.Setenv("KUBESTRAP_TIMEOUT_AGENTS", "garbage")
	t.Setenv("KUBESTRAP_RETRY_INITIAL_DELAY", "-1s")

	timeouts = LoadTimeouts()
	assert.Equal(t, 7, timeouts.RetryMaxAttempts)
	assert.Equal(t, 3, timeouts.PollAttempts(timeouts.CNI))
	assert.Equal(t, 1, timeouts.PollAttempts(timeouts.ReadinessInterval/2))
	assert.Equal(t, 12, timeouts.PollAttempts(timeouts.Agents), "invalid values fall back to defaults")
	assert.Equal(t, 2*time.Second, timeouts.RetryInitialDelay)
}
