package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/go-logr/logr"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

// NodeExporterOptions configures the node exporter.
type NodeExporterOptions struct {
	ListenPort  int
	TextfileDir string
	BinaryPath  string
}

// NodeExporter manages prometheus-node-exporter.
type NodeExporter struct {
	unitAgent
	opts NodeExporterOptions
}

// NewNodeExporter returns the node exporter agent for the node behind runner.
func NewNodeExporter(runner exec.Runner, opts NodeExporterOptions, log logr.Logger) *NodeExporter {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "/usr/local/bin/node_exporter"
	}
	if opts.ListenPort == 0 {
		opts.ListenPort = 9100
	}
	return &NodeExporter{
		unitAgent: newUnitAgent("node_exporter", opts.BinaryPath, runner, log),
		opts:      opts,
	}
}

var nodeExporterUnit = template.Must(template.New("node_exporter").Parse(`[Unit]
Description=Prometheus Node Exporter
Wants=network-online.target
After=network-online.target

[Service]
ExecStart={{ .BinaryPath }} --web.listen-address=:{{ .ListenPort }}{{ if .TextfileDir }} --collector.textfile.directory={{ .TextfileDir }}{{ end }}
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

// Unit renders the systemd unit.
func (n *NodeExporter) Unit() ([]byte, error) {
	var buf bytes.Buffer
	if err := nodeExporterUnit.Execute(&buf, n.opts); err != nil {
		return nil, fmt.Errorf("failed to render node_exporter unit: %w", err)
	}
	return buf.Bytes(), nil
}

// Install installs, enables and starts the node exporter.
func (n *NodeExporter) Install(ctx context.Context) error {
	unit, err := n.Unit()
	if err != nil {
		return err
	}
	if n.opts.TextfileDir != "" {
		if _, err := n.runner.Run(ctx, "mkdir -p "+exec.Quote(n.opts.TextfileDir)); err != nil {
			return fmt.Errorf("failed to create textfile directory: %w", err)
		}
	}
	return n.install(ctx, unit)
}
