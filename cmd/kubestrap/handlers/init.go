package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/kubestrap/internal/config"
)

var (
	// runWizard asks for the config values interactively.
	runWizard = config.RunWizard

	// writeConfig writes the generated config.
	writeConfig = config.WriteFile
)

// Init runs the interactive wizard and writes the result to outputPath.
func Init(ctx context.Context, outputPath string, force bool) error {
	if outputPath == "" {
		outputPath = config.DefaultConfigPath()
	}

	result, err := runWizard(ctx)
	if err != nil {
		return fmt.Errorf("wizard failed: %w", err)
	}

	cfg := result.ToConfig()
	if err := writeConfig(cfg, outputPath, force); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Wrote %s\n\nNext: kubestrap apply -c %s\n", outputPath, outputPath)
	return nil
}
