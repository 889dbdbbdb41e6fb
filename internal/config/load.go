package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses, defaults and validates configuration bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse parses YAML without applying defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Node.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Node.Name = host
		}
	}
	if c.Node.SSH != nil && c.Node.SSH.Port == 0 {
		c.Node.SSH.Port = DefaultSSHPort
	}
	if c.Node.SSH != nil && c.Node.SSH.User == "" {
		c.Node.SSH.User = "root"
	}

	k := &c.Kubernetes
	setDefault(&k.Version, DefaultKubernetesVersion)
	setDefault(&k.PodCIDR, DefaultPodCIDR)
	setDefault(&k.ServiceCIDR, DefaultServiceCIDR)
	setDefault(&k.KubeconfigPath, DefaultKubeconfigPath)

	setDefault(&c.Containerd.ConfigPath, DefaultContainerdConfigPath)
	setDefault(&c.Containerd.SandboxImage, DefaultSandboxImage)

	cal := &c.Calico
	setDefault(&cal.Chart.Repository, DefaultCalicoRepository)
	setDefault(&cal.Chart.Name, DefaultCalicoChart)
	setDefault(&cal.Chart.Version, DefaultCalicoVersion)
	if cal.Encapsulation == "" {
		cal.Encapsulation = EncapsulationVXLANCrossSubnet
	}
	if cal.Encryption == "" {
		cal.Encryption = EncryptionNone
	}
	if cal.MTU == 0 {
		cal.MTU = DefaultCalicoMTU
	}

	m := &c.Monitoring
	if m.NodeExporter.ListenPort == 0 {
		m.NodeExporter.ListenPort = DefaultNodeExporterPort
	}
	setDefault(&m.NodeExporter.TextfileDir, DefaultNodeExporterTextDir)
	if m.Otelcol.ListenPort == 0 {
		m.Otelcol.ListenPort = DefaultOtelcolPort
	}

	if c.State.Backend == "" {
		c.State.Backend = StateBackendFile
	}
	if c.State.Backend == StateBackendFile {
		setDefault(&c.State.Dir, DefaultStateDir)
	}
	if c.State.S3 != nil && c.State.S3.Prefix == "" {
		c.State.S3.Prefix = "kubestrap/" + c.ClusterName
	}
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOtelAuthToken); v != "" {
		c.Monitoring.Otelcol.AuthToken = v
	}
	if c.State.S3 != nil {
		if v := os.Getenv(EnvS3AccessKey); v != "" {
			c.State.S3.AccessKey = v
		}
		if v := os.Getenv(EnvS3SecretKey); v != "" {
			c.State.S3.SecretKey = v
		}
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the configuration to path, refusing to overwrite an
// existing file unless force is set.
func WriteFile(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the config path in the working directory.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return DefaultConfigFilename
	}
	return filepath.Join(cwd, DefaultConfigFilename)
}
