// Package prerequisites checks that the binaries a bootstrap run relies on
// are installed on the target node.
package prerequisites

import (
	"context"
	"fmt"
	"strings"

	"github.com/imamik/kubestrap/internal/platform/exec"
)

// Tool represents a binary that may be required on the node.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string

	// VersionArgs is appended to Name to print a version. Empty skips the
	// version lookup.
	VersionArgs string
}

// DefaultTools returns the tools every bootstrap needs.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:        "kubeadm",
			Required:    true,
			Description: "Initializes the control plane",
			InstallURL:  "https://kubernetes.io/docs/setup/production-environment/tools/kubeadm/install-kubeadm/",
			VersionArgs: "version -o short",
		},
		{
			Name:        "kubelet",
			Required:    true,
			Description: "Runs the control plane static pods",
			InstallURL:  "https://kubernetes.io/docs/setup/production-environment/tools/kubeadm/install-kubeadm/",
			VersionArgs: "--version",
		},
		{
			Name:        "systemctl",
			Required:    true,
			Description: "Manages containerd, kubelet and the monitoring agents",
			InstallURL:  "https://systemd.io/",
		},
		{
			Name:        "modprobe",
			Required:    true,
			Description: "Loads the overlay and br_netfilter kernel modules",
			InstallURL:  "https://github.com/kmod-project/kmod",
		},
		{
			Name:        "sysctl",
			Required:    true,
			Description: "Applies bridge and forwarding kernel settings",
			InstallURL:  "https://gitlab.com/procps-ng/procps",
		},
	}
}

// OptionalTools returns tools that are installed by a phase when missing or
// that only help with debugging.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "containerd",
			Required:    false,
			Description: "Container runtime; installed through containerd.install_command when missing",
			InstallURL:  "https://github.com/containerd/containerd/blob/main/docs/getting-started.md",
			VersionArgs: "--version",
		},
		{
			Name:        "kubectl",
			Required:    false,
			Description: "Useful for debugging and manual cluster operations",
			InstallURL:  "https://kubernetes.io/docs/tasks/tools/",
			VersionArgs: "version --client",
		},
	}
}

// MonitoringTools returns the agent binaries for the enabled agents.
func MonitoringTools(nodeExporter, otelcol bool) []Tool {
	var tools []Tool
	if nodeExporter {
		tools = append(tools, Tool{
			Name:        "node_exporter",
			Required:    true,
			Description: "Exports node metrics",
			InstallURL:  "https://github.com/prometheus/node_exporter/releases",
			VersionArgs: "--version",
		})
	}
	if otelcol {
		tools = append(tools, Tool{
			Name:        "otelcol",
			Required:    true,
			Description: "Forwards metrics to the configured endpoint",
			InstallURL:  "https://opentelemetry.io/docs/collector/installation/",
			VersionArgs: "--version",
		})
	}
	return tools
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check looks up each tool on the node behind runner. A failing lookup
// counts as missing; only a cancelled context aborts the check.
func Check(ctx context.Context, runner exec.Runner, tools []Tool) (*CheckResults, error) {
	results := &CheckResults{}

	for _, tool := range tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := CheckResult{Tool: tool}

		out, err := runner.Run(ctx, "command -v "+exec.Quote(tool.Name))
		if err == nil {
			result.Found = true
			result.Path = strings.TrimSpace(out)
			result.Version = toolVersion(ctx, runner, tool)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results, nil
}

// toolVersion returns the first output line of the version command, or ""
// when it cannot be determined.
func toolVersion(ctx context.Context, runner exec.Runner, tool Tool) string {
	if tool.VersionArgs == "" {
		return ""
	}
	out, err := runner.Run(ctx, exec.Quote(tool.Name)+" "+tool.VersionArgs)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.TrimSpace(line)
}
