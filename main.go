package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	configPath  string
	profileName string
	seedShop    string
	seedEmail   string
	seedPass    string
)

var rootCmd = &cobra.Command{
	Use:   "vendormarket",
	Short: "Multi-vendor storefront with cart, commission split and checkout",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API server",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load products from a name;description;price;category;img file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.profiles.Get(profileName).SeedWithData(cmd.Context(), args[0], SignupRequest{
			Shop:     seedShop,
			Email:    seedEmail,
			Password: seedPass,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
		return nil
	},
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Print the order log with per-vendor commission",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		orders, err := a.profiles.Get(profileName).Orders(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDER\tSTATUS\tSUBTOTAL\tFEE\tFEE(AGG)\tTOTAL")
		for _, o := range orders {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", o.ID, o.Status, o.Subtotal,
				o.PlatformFeeTotal, AggregateFee(o.Vendors, a.cfg.Commission.Rate), o.Total)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "storage profile (default profile when empty)")
	seedCmd.Flags().StringVar(&seedShop, "shop", "Seed Shop", "shop name of the seed vendor")
	seedCmd.Flags().StringVar(&seedEmail, "email", "seed@vendormarket.local", "email of the seed vendor")
	seedCmd.Flags().StringVar(&seedPass, "password", "seedpass", "password of the seed vendor")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(ordersCmd)
}

type app struct {
	cfg      *Config
	logger   *zap.Logger
	kv       KV
	metrics  *Metrics
	profiles *Profiles
	stripe   CheckoutSessionCreator
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.Log)
	kv, err := OpenKV(ctx, cfg.Store, cfg.Redis)
	if err != nil {
		return nil, err
	}

	var stripe CheckoutSessionCreator
	if cfg.Stripe.SecretKey != "" {
		stripe = NewStripeSessionCreator(cfg.Stripe)
	}
	// a configured base URL wins so the card call goes through the outbound HTTP contract
	sessions := stripe
	if cfg.Payment.BaseURL != "" {
		sessions = NewHTTPSessionClient(cfg.Payment)
	}

	metrics := NewMetrics()
	profiles := NewProfiles(kv, cfg,
		WithLogger(logger),
		WithMetrics(metrics),
		WithSessionCreator(sessions),
	)
	return &app{cfg: cfg, logger: logger, kv: kv, metrics: metrics, profiles: profiles, stripe: stripe}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	a.logger.Info("store opened", zap.String("driver", a.cfg.Store.Driver), zap.String("namespace", a.cfg.Store.Namespace))
	server := NewAPIServer(a.cfg, a.profiles, a.logger, a.metrics, a.stripe)
	return server.Run(ctx)
}
