// Package cli implements listctl, the operator command line for imports,
// bulk sends, suppression checks and event inspection.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ignite/optin/internal/app"
	"github.com/ignite/optin/internal/config"
)

// Config controls how the root command finds its configuration and where
// it writes.
type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// LoadConfig overrides config.LoadFromEnv.
	LoadConfig func(path string) (*config.Config, error)
}

type runtimeState struct {
	configPath   string
	outputFormat string
	loadConfig   func(string) (*config.Config, error)
	writer       io.Writer
	app          *app.App
}

type runtimeKey struct{}

// DefaultConfig reads config/config.yaml plus environment overrides and
// writes to stdout.
func DefaultConfig() Config {
	return Config{
		ConfigPath:   "config/config.yaml",
		OutputWriter: os.Stdout,
		LoadConfig:   config.LoadFromEnv,
	}
}

// NewRootCommand builds listctl.
func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{configPath: cfg.ConfigPath, writer: cfg.OutputWriter, loadConfig: cfg.LoadConfig}

	root := &cobra.Command{
		Use:           "listctl",
		Short:         "Operate the opt-in mailing list",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = cmd.OutOrStdout()
			}
			if rt.loadConfig == nil {
				rt.loadConfig = config.LoadFromEnv
			}
			if rt.outputFormat == "" {
				rt.outputFormat = os.Getenv("LISTCTL_OUTPUT")
			}
			// Signing needs no backends.
			if cmd.Name() == "webhook-sign" {
				return nil
			}
			c, err := rt.loadConfig(rt.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.New(cmd.Context(), c)
			if err != nil {
				return err
			}
			rt.app = a
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if rt.app != nil {
				rt.app.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: text, json, yaml")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		newImportCommand(),
		newSendCommand(),
		newCheckCommand(),
		newSuppressCommand(),
		newEventsCommand(),
		newPruneCommand(),
		newWebhookSignCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func mustApp(cmd *cobra.Command) (*runtimeState, error) {
	rt, err := getRuntime(cmd)
	if err != nil {
		return nil, err
	}
	if rt.app == nil {
		return nil, errors.New("services not initialized")
	}
	return rt, nil
}

// render writes v as JSON or YAML, or calls text for the default format.
func (rt *runtimeState) render(v any, text func(w io.Writer)) error {
	switch rt.outputFormat {
	case "json":
		enc := json.NewEncoder(rt.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		_, _ = fmt.Fprint(rt.writer, string(data))
		return nil
	case "", "text", "table":
		text(rt.writer)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", rt.outputFormat)
	}
}
