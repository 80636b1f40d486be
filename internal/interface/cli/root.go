// Package cli provides the weft command tree.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/app/config"
	"github.com/weftworks/weft/internal/buildinfo"
	"github.com/weftworks/weft/internal/infrastructure/di"
)

var configPath string

// NewRoot builds the root command with all subcommands.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "weft",
		Short:   "Thread orchestration for tool-using model workflows",
		Version: buildinfo.GetVersion(),
		RunE:    func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/weft.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newWaitCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newOrphansCmd())
	cmd.AddCommand(newVerifyCmd())
	return cmd
}

// loadConfig resolves the config file path and loads it. When --config
// is not given, <home>/weft.yaml is tried (WEFT_HOME or .weft).
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		home := os.Getenv("WEFT_HOME")
		if home == "" {
			home = ".weft"
		}
		path = filepath.Join(home, "weft.yaml")
	}
	return config.Load(path)
}

// withContainer runs fn with a wired container and closes it after.
func withContainer(fn func(c *di.Container) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	container, err := di.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(container)
}
