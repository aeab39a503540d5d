// storefront serves the NFT marketplace storefront API.
//
// Usage:
//
//	storefront [--config storefront.toml] [--listen :8080]
//	storefront catalog [--config storefront.toml]
//	storefront info [--config storefront.toml]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	cli "gopkg.in/urfave/cli.v1"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/catalog"
	"github.com/nftmarket/storefront/config"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/faucet"
	sfhttp "github.com/nftmarket/storefront/http"
	"github.com/nftmarket/storefront/metrics"
	"github.com/nftmarket/storefront/notify"
	"github.com/nftmarket/storefront/prefs"
	"github.com/nftmarket/storefront/purchase"
	evmsigner "github.com/nftmarket/storefront/signers/evm"
)

var (
	app = cli.NewApp()

	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML config file",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP listen address, overrides the config file",
	}
)

func init() {
	app.Name = "storefront"
	app.Usage = "NFT marketplace storefront"
	app.Version = "0.1.0"
	app.Action = serveCmd
	app.Flags = []cli.Flag{
		configFlag,
		listenFlag,
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the storefront API",
			Action: serveCmd,
			Flags:  []cli.Flag{configFlag, listenFlag},
		},
		{
			Name:   "catalog",
			Usage:  "Read the catalog from chain and print it",
			Action: catalogCmd,
			Flags:  []cli.Flag{configFlag},
		},
		{
			Name:   "info",
			Usage:  "Print the network and contract configuration",
			Action: infoCmd,
			Flags:  []cli.Flag{configFlag},
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	var out io.Writer = os.Stderr
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet(listenFlag.Name) {
		cfg.Listen = ctx.String(listenFlag.Name)
	}
	return cfg, nil
}

// ============================================================================
// Commands
// ============================================================================

func serveCmd(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PrivateKey == "" {
		log.Fatal().Msgf("%s is required to serve", config.EnvPrivateKey)
	}
	signer, err := evmsigner.NewClientSignerFromPrivateKey(runCtx, cfg.PrivateKey, cfg.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signer")
	}
	defer signer.Close()

	m := metrics.New()
	reader := evm.NewReader(signer, cfg.Marketplace, cfg.NFT,
		evm.WithStaleTime(cfg.Cache.StaleTime.Duration),
		evm.WithReadObserver(m.ObserveRead),
		evm.WithReaderLogger(log.With().Str("component", "reader").Logger()),
	)
	writer := evm.NewWriter(signer, cfg.Marketplace, cfg.NFT,
		evm.WithReceiptTimeout(cfg.Purchase.ReceiptTimeout.Duration),
		evm.WithTxObserver(m.ObserveTx),
		evm.WithWriterLogger(log.With().Str("component", "writer").Logger()),
	)

	rec := catalog.New(reader, cfg.Catalog.Entries,
		catalog.WithConcurrency(cfg.Catalog.Concurrency),
		catalog.WithRecomputeObserver(m.ObserveRecompute),
		catalog.WithLogger(log.With().Str("component", "catalog").Logger()),
	)

	notes := notify.NewCenter(cfg.Notifications.Capacity)

	seq := purchase.NewSequencer(reader, writer,
		purchase.WithApprovalPolicy(purchase.ApprovalPolicy(cfg.Purchase.ApprovalPolicy)),
		purchase.WithSkipAllowanceCheck(cfg.Purchase.SkipAllowanceCheck),
		purchase.WithSettleDelay(cfg.Purchase.SettleDelay.Duration),
		purchase.WithPauseGuard(reader),
		purchase.WithNotifier(notes),
		purchase.WithLogger(log.With().Str("component", "purchase").Logger()),
	)
	seq.OnApprovalSubmitted(m.ObserveSubmitted).
		OnApprovalConfirmed(m.ObserveConfirmed).
		OnPurchaseSubmitted(m.ObserveSubmitted).
		OnPurchaseConfirmed(m.ObserveConfirmed).
		OnTransactionFailed(m.ObserveFailed).
		OnTransactionFailed(func(fc storefront.TransactionFailureContext) error {
			log.Warn().Str("kind", string(fc.Kind)).Str("id", fc.Item.ID).Err(fc.Error).Msg("purchase step failed")
			return nil
		})

	store, err := prefs.OpenBadgerStore(cfg.Preferences.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preferences store")
	}
	defer store.Close()
	state := prefs.NewState(store, prefs.WithLogger(log.With().Str("component", "prefs").Logger()))

	var fct *faucet.Faucet
	if cfg.Faucet.Enabled {
		fct = faucet.New(writer,
			faucet.WithTokens(cfg.Faucet.Tokens),
			faucet.WithPause(cfg.Faucet.Pause.Duration),
			faucet.WithNotifier(notes),
			faucet.WithBalanceInvalidator(reader),
			faucet.WithLogger(log.With().Str("component", "faucet").Logger()),
		)
	}

	server := sfhttp.NewServer(sfhttp.Deps{
		Catalog:       rec,
		Sequencer:     seq,
		Listings:      writer,
		Chain:         reader,
		NFT:           writer.NFT(),
		Notifications: notes,
		Preferences:   state,
		Faucet:        fct,
		Metrics:       m,
	},
		sfhttp.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		sfhttp.WithRatePerMinute(cfg.HTTP.RatePerMinute),
		sfhttp.WithLogger(log.With().Str("component", "http").Logger()),
	)

	log.Info().
		Str("network", cfg.Network).
		Str("signer", signer.Address()).
		Str("marketplace", cfg.Marketplace).
		Int("catalog", len(cfg.Catalog.Entries)).
		Msg("storefront starting")

	// Run refreshes once before its first tick
	go rec.Run(runCtx, cfg.Catalog.RefreshInterval.Duration)

	return server.ListenAndServe(runCtx, cfg.Listen)
}

func catalogCmd(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := newLogger(cfg.Log)

	if cfg.PrivateKey == "" {
		return fmt.Errorf("%s is required", config.EnvPrivateKey)
	}
	runCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	signer, err := evmsigner.NewClientSignerFromPrivateKey(runCtx, cfg.PrivateKey, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer signer.Close()

	reader := evm.NewReader(signer, cfg.Marketplace, cfg.NFT, evm.WithReaderLogger(log))
	rec := catalog.New(reader, cfg.Catalog.Entries, catalog.WithConcurrency(cfg.Catalog.Concurrency), catalog.WithLogger(log))
	if err := rec.Refresh(runCtx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRARITY\tPRICE\tLISTING")
	for _, item := range rec.Items() {
		listing := "-"
		if item.ListingID != nil {
			listing = item.ListingID.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Rarity, item.Price, listing)
	}
	return w.Flush()
}

func infoCmd(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	network, err := cfg.NetworkConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "network\t%s (chain %s)\n", cfg.Network, network.ChainID)
	fmt.Fprintf(w, "rpc\t%s\n", network.RPCURL)
	fmt.Fprintf(w, "marketplace\t%s\n", network.Marketplace)
	fmt.Fprintf(w, "nft\t%s\n", network.NFT)
	fmt.Fprintf(w, "catalog\t%d tokens, refresh every %s\n", len(cfg.Catalog.Entries), cfg.Catalog.RefreshInterval.Duration)
	fmt.Fprintf(w, "approval\t%s\n", cfg.Purchase.ApprovalPolicy)
	if cfg.Faucet.Enabled {
		symbols := make([]string, 0, len(cfg.Faucet.Tokens))
		for _, t := range cfg.Faucet.Tokens {
			symbols = append(symbols, t.Symbol)
		}
		fmt.Fprintf(w, "faucet\t%s\n", strings.Join(symbols, ", "))
	}
	return w.Flush()
}
