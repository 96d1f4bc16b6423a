package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/seed"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.migrate()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load denied words and user restrictions from a YAML file",
	Long: `seed reads denied rating words and IP, email and disposable domain
restrictions from a YAML file and stores them. Running it again with the
same file changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(args[0])
		if err != nil {
			return err
		}

		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := seed.Apply(cmd.Context(), f, a.words, a.screenRepo, a.log.Component("seed"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d denied words and %d restrictions\n", summary.Words, summary.Restrictions)
		return nil
	},
}

var (
	recomputeBatch        int
	recomputeBayesianOnly bool
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute rating aggregates and bayesian ratings of every add-on",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		failed, err := a.denorm.RecomputeAll(cmd.Context(), recomputeBatch, recomputeBayesianOnly)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("recompute failed for %d add-ons", failed)
		}
		return nil
	},
}

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		token, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(uint(id), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	recomputeCmd.Flags().IntVar(&recomputeBatch, "batch-size", 100, "add-ons per batch")
	recomputeCmd.Flags().BoolVar(&recomputeBayesianOnly, "bayesian-only", false, "skip the aggregate sweep")

	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
