package helm

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/repo"
)

// ChartSpec identifies a chart in a Helm repository.
type ChartSpec struct {
	Repository string `yaml:"repository"`
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
}

func (s ChartSpec) String() string {
	return fmt.Sprintf("%s/%s@%s", s.Repository, s.Name, s.Version)
}

// DownloadChart resolves spec against the repository index and loads the
// chart archive into memory.
func DownloadChart(ctx context.Context, spec ChartSpec) (*chart.Chart, error) {
	if spec.Repository == "" || spec.Name == "" {
		return nil, fmt.Errorf("chart repository and name are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	providers := getter.All(cli.New())

	chartURL, err := repo.FindChartInRepoURL(spec.Repository, spec.Name, spec.Version, "", "", "", providers)
	if err != nil {
		return nil, fmt.Errorf("failed to find chart %s in repo %s: %w", spec.Name, spec.Repository, err)
	}

	u, err := url.Parse(chartURL)
	if err != nil {
		return nil, fmt.Errorf("invalid chart URL %q: %w", chartURL, err)
	}
	g, err := providers.ByScheme(u.Scheme)
	if err != nil {
		return nil, fmt.Errorf("no getter for chart URL %q: %w", chartURL, err)
	}

	buf, err := g.Get(chartURL, getter.WithURL(spec.Repository))
	if err != nil {
		return nil, fmt.Errorf("failed to download chart %s: %w", path.Base(u.Path), err)
	}

	ch, err := loader.LoadArchive(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to load chart %s: %w", spec, err)
	}
	return ch, nil
}

// LoadChart loads a chart from a local directory or archive.
func LoadChart(chartPath string) (*chart.Chart, error) {
	ch, err := loader.Load(filepath.Clean(chartPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load chart from %s: %w", chartPath, err)
	}
	return ch, nil
}
