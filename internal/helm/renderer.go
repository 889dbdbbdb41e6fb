package helm

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
)

// DefaultKubeVersion is the Kubernetes version templates are rendered
// against when the caller does not set one.
const DefaultKubeVersion = "v1.31.0"

// Renderer renders a chart as a named release in a namespace.
type Renderer struct {
	ReleaseName string
	Namespace   string
	KubeVersion string

	// IncludeCRDs prepends the chart's crds/ files to the output.
	IncludeCRDs bool
}

// NewRenderer creates a renderer for the given release.
func NewRenderer(releaseName, namespace string) *Renderer {
	return &Renderer{
		ReleaseName: releaseName,
		Namespace:   namespace,
		KubeVersion: DefaultKubeVersion,
	}
}

// RenderFromSpec downloads the chart described by spec and renders it.
func (r *Renderer) RenderFromSpec(ctx context.Context, spec ChartSpec, values Values) ([]byte, error) {
	ch, err := DownloadChart(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to download chart: %w", err)
	}
	return r.Render(ch, values)
}

// Render renders ch with values merged over the chart defaults. Templates are
// emitted in name order as one multi-document YAML stream; NOTES.txt and
// empty templates are dropped. CRDs come first when IncludeCRDs is set.
func (r *Renderer) Render(ch *chart.Chart, values Values) ([]byte, error) {
	caps, err := r.capabilities()
	if err != nil {
		return nil, err
	}

	merged := Merge(Values(ch.Values), values)
	opts := chartutil.ReleaseOptions{
		Name:      r.ReleaseName,
		Namespace: r.Namespace,
		IsInstall: true,
	}

	renderValues, err := chartutil.ToRenderValues(ch, chartutil.Values(merged.ToMap()), opts, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare values: %w", err)
	}

	rendered, err := engine.Render(ch, renderValues)
	if err != nil {
		return nil, fmt.Errorf("failed to render templates: %w", err)
	}

	names := make([]string, 0, len(rendered))
	for name := range rendered {
		names = append(names, name)
	}
	sort.Strings(names)

	var combined bytes.Buffer
	if r.IncludeCRDs {
		for _, crd := range ch.CRDObjects() {
			appendDocument(&combined, string(crd.File.Data))
		}
	}
	for _, name := range names {
		if filepath.Base(name) == "NOTES.txt" {
			continue
		}
		appendDocument(&combined, rendered[name])
	}
	return combined.Bytes(), nil
}

func appendDocument(buf *bytes.Buffer, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if buf.Len() > 0 {
		buf.WriteString("\n---\n")
	}
	buf.WriteString(content)
	buf.WriteString("\n")
}

func (r *Renderer) capabilities() (*chartutil.Capabilities, error) {
	caps := chartutil.DefaultCapabilities.Copy()
	version := r.KubeVersion
	if version == "" {
		version = DefaultKubeVersion
	}
	kv, err := chartutil.ParseKubeVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid kubernetes version %q: %w", version, err)
	}
	caps.KubeVersion = *kv
	return caps, nil
}
