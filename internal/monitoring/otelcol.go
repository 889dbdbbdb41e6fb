package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

const (
	otelcolConfigPath = "/etc/otelcol/config.yaml"
	otelcolEnvPath    = "/etc/otelcol/otelcol.env"
	otelcolTokenEnv   = "OTEL_EXPORTER_AUTH_TOKEN"
)

// OtelcolOptions configures the OpenTelemetry collector.
type OtelcolOptions struct {
	// Endpoint is the OTLP/HTTP endpoint metrics are exported to.
	Endpoint string

	// AuthToken is sent as a bearer token when set.
	AuthToken string

	// ListenPort is the local OTLP/gRPC receiver port.
	ListenPort int

	// ScrapeNodeExporter scrapes the local node exporter on this port when
	// non-zero.
	ScrapeNodeExporter int

	BinaryPath string
}

// Otelcol manages the OpenTelemetry collector.
type Otelcol struct {
	unitAgent
	opts OtelcolOptions
}

// NewOtelcol returns the collector agent for the node behind runner.
func NewOtelcol(runner exec.Runner, opts OtelcolOptions, log logr.Logger) *Otelcol {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "/usr/bin/otelcol"
	}
	if opts.ListenPort == 0 {
		opts.ListenPort = 4317
	}
	return &Otelcol{
		unitAgent: newUnitAgent("otelcol", opts.BinaryPath, runner, log),
		opts:      opts,
	}
}

// Config renders the collector configuration. The auth token never appears
// in it; the collector reads it from its environment file.
func (o *Otelcol) Config() ([]byte, error) {
	if o.opts.Endpoint == "" {
		return nil, fmt.Errorf("otelcol export endpoint is required")
	}

	receivers := map[string]any{
		"otlp": map[string]any{
			"protocols": map[string]any{
				"grpc": map[string]any{"endpoint": fmt.Sprintf("0.0.0.0:%d", o.opts.ListenPort)},
			},
		},
	}
	pipelineReceivers := []string{"otlp"}
	if o.opts.ScrapeNodeExporter > 0 {
		receivers["prometheus"] = map[string]any{
			"config": map[string]any{
				"scrape_configs": []any{map[string]any{
					"job_name":        "node",
					"scrape_interval": "30s",
					"static_configs":  []any{map[string]any{"targets": []string{fmt.Sprintf("127.0.0.1:%d", o.opts.ScrapeNodeExporter)}}},
				}},
			},
		}
		pipelineReceivers = append(pipelineReceivers, "prometheus")
	}

	exporter := map[string]any{"endpoint": o.opts.Endpoint}
	if o.opts.AuthToken != "" {
		exporter["headers"] = map[string]any{"Authorization": "Bearer ${env:" + otelcolTokenEnv + "}"}
	}

	cfg := map[string]any{
		"receivers":  receivers,
		"processors": map[string]any{"batch": map[string]any{}},
		"exporters":  map[string]any{"otlphttp": exporter},
		"service": map[string]any{
			"pipelines": map[string]any{
				"metrics": map[string]any{
					"receivers":  pipelineReceivers,
					"processors": []string{"batch"},
					"exporters":  []string{"otlphttp"},
				},
			},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode otelcol config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode otelcol config: %w", err)
	}
	return buf.Bytes(), nil
}

var otelcolUnit = template.Must(template.New("otelcol").Parse(`[Unit]
Description=OpenTelemetry Collector
Wants=network-online.target
After=network-online.target

[Service]
EnvironmentFile=-{{ .EnvPath }}
ExecStart={{ .BinaryPath }} --config={{ .ConfigPath }}
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

// Unit renders the systemd unit.
func (o *Otelcol) Unit() ([]byte, error) {
	var buf bytes.Buffer
	err := otelcolUnit.Execute(&buf, map[string]string{
		"BinaryPath": o.opts.BinaryPath,
		"ConfigPath": otelcolConfigPath,
		"EnvPath":    otelcolEnvPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render otelcol unit: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the configuration and unit, then enables and starts the
// collector.
func (o *Otelcol) Install(ctx context.Context) error {
	cfg, err := o.Config()
	if err != nil {
		return err
	}
	unit, err := o.Unit()
	if err != nil {
		return err
	}

	env := ""
	if o.opts.AuthToken != "" {
		env = otelcolTokenEnv + "=" + o.opts.AuthToken + "\n"
	}
	return o.install(ctx, unit,
		file{path: otelcolConfigPath, data: cfg, mode: 0o644},
		file{path: otelcolEnvPath, data: []byte(env), mode: 0o600},
	)
}
