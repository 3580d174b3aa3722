// File path: cmd/vitaplan/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nicodishanthj/vitaplan/internal/api"
	"github.com/nicodishanthj/vitaplan/internal/careplan"
	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/profile"
	"github.com/nicodishanthj/vitaplan/internal/records"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd, serveFlags); err != nil {
				return err
			}
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", ":8081", "listen address")
	cmd.Flags().String("degrade", string(careplan.DegradeContinue), "behaviour when a knowledge store is unavailable (continue or abort)")
	cmd.Flags().String("prompts", "", "stage prompt YAML overriding the embedded prompts")
	cmd.Flags().Duration("call-timeout", 0, "per generation call timeout")
	cmd.Flags().Duration("plan-timeout", 0, "overall timeout for one plan request")
	cmd.Flags().Bool("start-chroma", false, "launch a local ChromaDB server for the lifetime of the process")
	return cmd
}

var serveFlags = map[string]string{
	"addr":         "addr",
	"degrade":      "degrade",
	"prompts_file": "prompts",
	"call_timeout": "call-timeout",
	"plan_timeout": "plan-timeout",
	"start_chroma": "start-chroma",
}

var planFlags = map[string]string{
	"degrade":      "degrade",
	"prompts_file": "prompts",
}

// bindFlags binds the running command's flags to viper keys. Several commands
// share keys, so binding happens when a command runs rather than at construction.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg appConfig) error {
	logger := common.Logger()
	if cfg.StartChroma {
		chroma, err := startChroma(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := chroma.Stop(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("vitaplan: chromadb shutdown returned error")
			}
		}()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.NewServer(a.service, a.table, a.orch.RecordStore(), &api.Config{PlanTimeout: cfg.PlanTimeout})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	reachable := cfg.Addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info().Str("addr", cfg.Addr).Str("health", fmt.Sprintf("http://%s/healthz", reachable)).Msg("vitaplan: server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("vitaplan: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func newPlanCommand(v *viper.Viper) *cobra.Command {
	var (
		raw    profile.RawInput
		asJSON bool
		sample bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build a treatment plan and print it as markdown",
		Example: `  vitaplan plan --age 45 --gender Female --height-feet 5 --height-inches 4 \
    --weight 80 --diet Vegetarian --region Punjab --residence Urban --wealth Middle`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd, planFlags); err != nil {
				return err
			}
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if sample {
				if err := fillFromSample(cmd, a.orch.RecordStore(), &raw); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.PlanTimeout)
			defer cancel()
			tp, err := a.service.BuildTreatmentPlan(ctx, raw)
			if err != nil {
				kind, message := careplan.Describe(err)
				return fmt.Errorf("%s: %s", kind, message)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tp)
			}
			_, err = fmt.Fprint(out, tp.Markdown())
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&raw.Name, "name", "", "display name shown in the plan")
	f.IntVar(&raw.Age, "age", 0, "age in years")
	f.StringVar(&raw.Gender, "gender", "", "Female or Male")
	f.Float64Var(&raw.HeightFeet, "height-feet", 0, "height, feet part")
	f.Float64Var(&raw.HeightInches, "height-inches", 0, "height, inches part")
	f.Float64Var(&raw.HeightCM, "height-cm", 0, "height in centimetres (overrides feet and inches)")
	f.Float64Var(&raw.WeightKG, "weight", 0, "weight in kilograms")
	f.StringVar(&raw.Diet, "diet", "", "Vegetarian, Non-Vegetarian or Semi-Vegetarian")
	f.StringVar(&raw.Walking, "walking", "", "walks regularly (Yes, No, Don't Know)")
	f.StringVar(&raw.DailySteps, "steps", "", "daily steps band")
	f.StringVar(&raw.Smoking, "smoking", "", "smoking status")
	f.StringVar(&raw.Alcohol, "alcohol", "", "alcohol use")
	f.StringVar(&raw.Region, "region", "", "state or region")
	f.StringVar(&raw.Residence, "residence", "", "Urban or Rural")
	f.StringVar(&raw.Wealth, "wealth", "", "wealth quintile (Poorest to Richest)")
	f.BoolVar(&asJSON, "json", false, "print the plan as JSON")
	f.BoolVar(&sample, "sample", false, "prefill the intake from a random survey record; explicit flags still win")
	f.String("degrade", string(careplan.DegradeContinue), "behaviour when a knowledge store is unavailable (continue or abort)")
	f.String("prompts", "", "stage prompt YAML overriding the embedded prompts")
	return cmd
}

// fillFromSample copies a random survey record into the intake fields the user
// did not set on the command line.
func fillFromSample(cmd *cobra.Command, store *records.Store, raw *profile.RawInput) error {
	if store == nil {
		return errors.New("sample: record store unavailable")
	}
	rec, err := store.Random(cmd.Context())
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	intake := rec.Intake()
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if !flags.Changed(name) {
			apply()
		}
	}
	set("age", func() { raw.Age = intake.Age })
	if !flags.Changed("height-feet") && !flags.Changed("height-inches") && !flags.Changed("height-cm") {
		raw.HeightFeet, raw.HeightInches, raw.HeightCM = intake.HeightFeet, intake.HeightInches, intake.HeightCM
	}
	set("weight", func() { raw.WeightKG = intake.WeightKG })
	set("diet", func() { raw.Diet = intake.Diet })
	set("region", func() { raw.Region = intake.Region })
	set("residence", func() { raw.Residence = intake.Residence })
	set("wealth", func() { raw.Wealth = intake.Wealth })
	common.Logger().Info().Str("record", rec.SourceID).Msg("vitaplan: intake prefilled from survey record")
	return nil
}

func newBMICommand(v *viper.Viper) *cobra.Command {
	var feet, inches, weight float64
	cmd := &cobra.Command{
		Use:   "bmi",
		Short: "Print BMI and category",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			table, err := loadTable(cfg)
			if err != nil {
				return err
			}
			bmi, category, err := profile.ComputeBMI(feet, inches, weight, table.Thresholds())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "BMI %.2f (%s)\n", bmi, category)
			return err
		},
	}
	cmd.Flags().Float64Var(&feet, "feet", 0, "height, feet part")
	cmd.Flags().Float64Var(&inches, "inches", 0, "height, inches part")
	cmd.Flags().Float64Var(&weight, "weight", 0, "weight in kilograms")
	return cmd
}

func newIndexCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Embed guidelines and survey records into ChromaDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.orch.Index(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d guideline chunks and %d records\n", report.Guidelines, report.Records)
			return err
		},
	}
}

func newRecordsCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Manage the survey record store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <csv>",
		Short: "Load the survey CSV into SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			table, err := loadTable(cfg)
			if err != nil {
				return err
			}
			store, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()
			result, err := store.ImportCSV(cmd.Context(), f, table)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d records, skipped %d\n", result.Imported, result.Skipped)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Summarise the imported records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(v)
			if err != nil {
				return err
			}
			store, err := openRecords(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	})
	return cmd
}

func openRecords(cfg appConfig) (*records.Store, error) {
	rcfg, err := records.LoadConfig()
	if err != nil {
		return nil, err
	}
	if path := strings.TrimSpace(cfg.RecordsPath); path != "" {
		rcfg.Path = path
	}
	return records.OpenWithConfig(rcfg)
}
