package main

// storefront serve            - run the HTTP API
// storefront migrate          - apply the Postgres schema
// storefront promo check CODE - evaluate a promotion code against a subtotal
//
// Routes:
// POST /products, GET /products/list, POST /products/stock
// POST /cart/add, /cart/update, /cart/remove, /cart/clear, GET /cart/list
// POST /cart/promotion, /cart/promotion/remove
// POST /checkout/order
// GET /metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cmykmanya/shopai-sub000/config"
	"github.com/cmykmanya/shopai-sub000/logging"
	"github.com/cmykmanya/shopai-sub000/promotion"
	"github.com/cmykmanya/shopai-sub000/store"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "storefront",
	Short:         "Storefront cart and order pricing service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger, _, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg, logger)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate needs the postgres driver, configured driver is %q", cfg.Store.Driver)
		}
		pg, err := store.NewPostgresStore(cfg.Store.DSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("database migrations executed successfully")
		return nil
	},
}

var promoCmd = &cobra.Command{
	Use:   "promo",
	Short: "Inspect configured promotion codes",
}

var promoSubtotal string

var promoCheckCmd = &cobra.Command{
	Use:   "check CODE",
	Short: "Evaluate CODE against --subtotal at the current time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subtotal, err := decimal.NewFromString(promoSubtotal)
		if err != nil {
			return fmt.Errorf("invalid --subtotal: %w", err)
		}
		rules, err := cfg.PromotionRules()
		if err != nil {
			return err
		}
		engine, err := promotion.NewEngine(rules)
		if err != nil {
			return err
		}
		res := engine.Evaluate(args[0], subtotal)
		if res.Reason == promotion.ReasonInvalidCode {
			fmt.Fprintf(cmd.ErrOrStderr(), "unknown code %q; configured codes: %s\n",
				res.Code, strings.Join(engine.Codes(), ", "))
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "storefront.yaml", "path to the YAML config file")
	promoCheckCmd.Flags().StringVar(&promoSubtotal, "subtotal", "0", "cart subtotal to evaluate against")

	promoCmd.AddCommand(promoCheckCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, promoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
