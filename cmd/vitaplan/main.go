// File path: cmd/vitaplan/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nicodishanthj/vitaplan/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(newViper()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	var (
		configPath string
		envFiles   []string
	)
	root := &cobra.Command{
		Use:           "vitaplan",
		Short:         "Personalised obesity treatment plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFiles(envFiles); err != nil {
				return err
			}
			return readConfigFile(v, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML, JSON or TOML config file")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env when present)")
	root.PersistentFlags().String("reference", "", "reference data YAML overriding the embedded tables")
	root.PersistentFlags().String("records", "", "path to the SQLite records database")
	_ = v.BindPFlag("reference_file", root.PersistentFlags().Lookup("reference"))
	_ = v.BindPFlag("records_path", root.PersistentFlags().Lookup("records"))

	root.AddCommand(
		newServeCommand(v),
		newPlanCommand(v),
		newBMICommand(v),
		newIndexCommand(v),
		newRecordsCommand(v),
	)
	return root
}

// loadEnvFiles loads explicit dotenv files, failing when one is missing, or the
// default .env when it exists. Variables already set in the environment win.
func loadEnvFiles(files []string) error {
	logger := common.Logger()
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	logger.Info().Str("files", strings.Join(files, ",")).Msg("vitaplan: environment loaded")
	return nil
}
