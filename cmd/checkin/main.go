package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/museum-checkin/internal/auth"
	"github.com/neexbeast/museum-checkin/internal/backend"
	"github.com/neexbeast/museum-checkin/internal/cache"
	"github.com/neexbeast/museum-checkin/internal/config"
	"github.com/neexbeast/museum-checkin/internal/drafts"
	"github.com/neexbeast/museum-checkin/internal/localstore"
	"github.com/neexbeast/museum-checkin/internal/metrics"
)

const usage = `usage: checkin <command> [flags]

commands:
  login     log in with --username/--password or a WeChat --code
  logout    end the session
  open      open a check-in session and print it
  save      open a session, apply edits and save a draft
  submit    open a session, apply edits and submit the check-in
  drafts    list saved drafts
  discard   delete a draft locally and remotely
  records   list check-in records
  stats     show check-in statistics
  nearby    show the check-in hub for a position
  radius    show or set the preferred nearby radius
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(log, cfg, os.Args[1:], os.Stdout); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by every command.
type app struct {
	log      *slog.Logger
	cfg      config.Config
	out      io.Writer
	kv       *localstore.Store
	auth     *auth.Session
	checkins *backend.CheckinClient
	museums  *backend.MuseumClient
	catalog  *cache.Museums
	drafts   *drafts.Store
	metrics  *metrics.Collector
	registry *prometheus.Registry
}

func run(log *slog.Logger, cfg config.Config, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("no command given")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := localstore.Connect(ctx, cfg.RedisURL, cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("connecting to device store: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	a := newApp(log, cfg, redisClient, out)
	err = a.dispatch(ctx, args[0], args[1:])
	if cfg.MetricsTextfile != "" {
		if werr := metrics.WriteTextfile(cfg.MetricsTextfile, a.registry); werr != nil {
			log.Warn("exporting metrics", "err", werr)
		}
	}
	return err
}

func newApp(log *slog.Logger, cfg config.Config, redisClient *redis.Client, out io.Writer) *app {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	kv := localstore.New(redisClient, cfg.DeviceID)
	transport := backend.NewTransport(cfg.APIBaseURL, cfg.HTTPTimeout, log).WithObserver(collector)
	sess := auth.NewSession(kv, transport, log)
	museums := backend.NewMuseumClient(transport)

	return &app{
		log:      log,
		cfg:      cfg,
		out:      out,
		kv:       kv,
		auth:     sess,
		checkins: backend.NewCheckinClient(transport, sess),
		museums:  museums,
		catalog:  cache.NewMuseums(redisClient, museums, log),
		drafts:   drafts.NewStore(kv, log),
		metrics:  collector,
		registry: reg,
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "open":
		return a.open(ctx, args)
	case "save":
		return a.save(ctx, args)
	case "submit":
		return a.submit(ctx, args)
	case "drafts":
		return a.listDrafts(ctx)
	case "discard":
		return a.discard(ctx, args)
	case "records":
		return a.records(ctx, args)
	case "stats":
		return a.stats(ctx)
	case "nearby":
		return a.nearby(ctx, args)
	case "radius":
		return a.radius(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	}
	fmt.Fprint(a.out, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// printNotifier renders controller feedback as plain lines.
type printNotifier struct {
	out io.Writer
}

func (n printNotifier) Toast(msg string) {
	fmt.Fprintf(n.out, "[toast] %s\n", msg)
}

func (n printNotifier) Alert(title, msg string) {
	fmt.Fprintf(n.out, "[%s] %s\n", title, msg)
}

func (n printNotifier) Navigate(route string) {
	fmt.Fprintf(n.out, "[navigate] %s\n", route)
}
