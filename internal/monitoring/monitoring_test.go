package monitoring

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/imamik/kubestrap/internal/platform/exec"
	"github.com/imamik/kubestrap/internal/platform/systemd"
	"github.com/imamik/kubestrap/internal/util/retry"
)

func TestNodeExporter_Install(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := exec.NewMockRunner()
	n := NewNodeExporter(r, NodeExporterOptions{TextfileDir: "/var/lib/node_exporter/textfile_collector"}, logr.Discard())

	require.NoError(t, n.Install(ctx))

	unit := string(r.Files["/etc/systemd/system/node_exporter.service"])
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/node_exporter --web.listen-address=:9100")
	assert.Contains(t, unit, "--collector.textfile.directory=/var/lib/node_exporter/textfile_collector")
	assert.True(t, r.Ran("mkdir -p /var/lib/node_exporter/textfile_collector"))
	assert.True(t, r.Ran("systemctl enable --now node_exporter.service"))
	assert.Equal(t, 1, r.Count("systemctl restart node_exporter.service"))

	require.NoError(t, n.Install(ctx))
	assert.Equal(t, 1, r.Count("systemctl restart node_exporter.service"), "unchanged unit must not restart")
}

func TestNodeExporter_MissingBinary(t *testing.T) {
	t.Parallel()
	r := exec.NewMockRunner().Fail("test -x", 1, "")
	n := NewNodeExporter(r, NodeExporterOptions{}, logr.Discard())

	err := n.Install(context.Background())
	require.Error(t, err)
	assert.True(t, retry.IsFatal(err))
	assert.Contains(t, err.Error(), "not found")
	assert.False(t, r.Ran("systemctl"))
}

func TestOtelcol_Config(t *testing.T) {
	t.Parallel()
	o := NewOtelcol(exec.NewMockRunner(), OtelcolOptions{
		Endpoint:           "https://otel.example.com:4318",
		AuthToken:          "s3cret",
		ListenPort:         14317,
		ScrapeNodeExporter: 9100,
	}, logr.Discard())

	data, err := o.Config()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")

	var cfg struct {
		Receivers map[string]any `yaml:"receivers"`
		Exporters struct {
			OTLPHTTP struct {
				Endpoint string            `yaml:"endpoint"`
				Headers  map[string]string `yaml:"headers"`
			} `yaml:"otlphttp"`
		} `yaml:"exporters"`
		Service struct {
			Pipelines struct {
				Metrics struct {
					Receivers []string `yaml:"receivers"`
				} `yaml:"metrics"`
			} `yaml:"pipelines"`
		} `yaml:"service"`
	}
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "https://otel.example.com:4318", cfg.Exporters.OTLPHTTP.Endpoint)
	assert.Equal(t, "Bearer ${env:OTEL_EXPORTER_AUTH_TOKEN}", cfg.Exporters.OTLPHTTP.Headers["Authorization"])
	assert.Equal(t, []string{"otlp", "prometheus"}, cfg.Service.Pipelines.Metrics.Receivers)
	assert.Contains(t, string(data), "0.0.0.0:14317")
	assert.Contains(t, string(data), "127.0.0.1:9100")
}

func TestOtelcol_ConfigWithoutToken(t *testing.T) {
	t.Parallel()
	o := NewOtelcol(exec.NewMockRunner(), OtelcolOptions{Endpoint: "http://collector:4318"}, logr.Discard())

	data, err := o.Config()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Authorization")
	assert.NotContains(t, string(data), "prometheus")
	assert.Contains(t, string(data), "0.0.0.0:4317")

	_, err = NewOtelcol(exec.NewMockRunner(), OtelcolOptions{}, logr.Discard()).Config()
	assert.Error(t, err)
}

func TestOtelcol_Install(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := exec.NewMockRunner()
	o := NewOtelcol(r, OtelcolOptions{Endpoint: "http://collector:4318", AuthToken: "tok"}, logr.Discard())

	require.NoError(t, o.Install(ctx))
	assert.Equal(t, "OTEL_EXPORTER_AUTH_TOKEN=tok\n", string(r.Files[otelcolEnvPath]))
	assert.Equal(t, 0o600, int(r.Modes[otelcolEnvPath]))
	assert.Contains(t, string(r.Files[otelcolConfigPath]), "otlphttp")
	assert.Contains(t, string(r.Files["/etc/systemd/system/otelcol.service"]), "--config=/etc/otelcol/config.yaml")
	assert.Equal(t, 1, r.Count("systemctl restart otelcol.service"))

	require.NoError(t, o.Install(ctx))
	assert.Equal(t, 1, r.Count("systemctl restart otelcol.service"))

	o.opts.AuthToken = "rotated"
	require.NoError(t, o.Install(ctx))
	assert.Equal(t, 2, r.Count("systemctl restart otelcol.service"), "a rotated token must restart the collector")
}

func TestAgents_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := exec.NewMockRunner().
		On("is-active node_exporter", "active\n", nil).
		Fail("is-active otelcol", 3, "failed\n")
	n := NewNodeExporter(r, NodeExporterOptions{}, logr.Discard())
	o := NewOtelcol(r, OtelcolOptions{Endpoint: "http://collector:4318"}, logr.Discard())

	ok, err := AllReady(ctx, n)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AllReady(ctx, n, o)
	require.NoError(t, err)
	assert.False(t, ok)

	state, err := o.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, systemd.StateFailed, state)

	require.NoError(t, o.Restart(ctx))
	require.NoError(t, n.Stop(ctx))
	require.NoError(t, n.Start(ctx))
	assert.True(t, r.Ran("systemctl restart otelcol.service"))
	assert.True(t, r.Ran("systemctl stop node_exporter.service"))
	assert.True(t, r.Ran("systemctl start node_exporter.service"))
}

func TestInstallAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := exec.NewMockRunner()
	n := NewNodeExporter(r, NodeExporterOptions{}, logr.Discard())
	o := NewOtelcol(r, OtelcolOptions{Endpoint: "http://collector:4318"}, logr.Discard())

	require.NoError(t, InstallAll(ctx, n, o))
	assert.True(t, r.Ran("systemctl enable --now node_exporter.service"))
	assert.True(t, r.Ran("systemctl enable --now otelcol.service"))

	missing := exec.NewMockRunner().Fail("test -x /usr/bin/otelcol", 1, "")
	err := InstallAll(ctx,
		NewNodeExporter(missing, NodeExporterOptions{}, logr.Discard()),
		NewOtelcol(missing, OtelcolOptions{Endpoint: "http://collector:4318"}, logr.Discard()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "otelcol: ")
	assert.True(t, retry.IsFatal(err))
	assert.True(t, missing.Ran("systemctl enable --now node_exporter.service"))
}
