package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"callwatch/internal/api"
	"callwatch/internal/digest"
	"callwatch/internal/leaderboard"
	"callwatch/internal/notify"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, HTTP API, alert feed and leaderboard digest",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("http-addr", ":8080", "HTTP listen address for API, metrics and feed")
	flags.String("admin-token", "", "Bearer token for /admin routes (empty disables them)")
	mustBind("http_addr", flags.Lookup("http-addr"))
	mustBind("admin_token", flags.Lookup("admin-token"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := createStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	or, closeOracle, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	feed := notify.NewFeed(nil)
	defer feed.Close()

	notifier, err := buildNotifier(cfg, feed)
	if err != nil {
		return err
	}

	sched := buildScheduler(cfg, st, or, notifier)
	ranker := leaderboard.NewRanker(st.calls)

	dg := digest.New(ranker, notifier, digest.Options{Schedule: cfg.DigestCron, Top: cfg.DigestSize})
	if err := dg.Start(); err != nil {
		return err
	}
	defer dg.Stop()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(api.Options{
			Submitter:  buildSubmission(cfg, st, or),
			Ranker:     ranker,
			Scheduler:  sched,
			Feed:       feed,
			AdminToken: cfg.AdminToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sched.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
