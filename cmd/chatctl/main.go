// chatctl connects to the marketplace messaging endpoint and runs an
// interactive chat session on the terminal.
// Usage: go run ./cmd/chatctl --config configs/chatctl.example.yaml --conversation 42
//
// Settings may also come from CHAT_* environment variables, for example
// CHAT_USER_ID, CHAT_USER_TOKEN and CHAT_REALTIME_URL.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/marketplace-realtime/internal/api"
	"github.com/rickgao/marketplace-realtime/internal/archive"
	"github.com/rickgao/marketplace-realtime/internal/auth"
	"github.com/rickgao/marketplace-realtime/internal/chat"
	"github.com/rickgao/marketplace-realtime/internal/config"
	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/database"
	"github.com/rickgao/marketplace-realtime/internal/logging"
	"github.com/rickgao/marketplace-realtime/internal/model"
	"github.com/rickgao/marketplace-realtime/internal/poller"
	"github.com/rickgao/marketplace-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty: environment only)")
	userID := flag.String("user", "", "user id (overrides config)")
	token := flag.String("token", "", "session token (overrides config)")
	tokenFile := flag.String("token-file", "", "read the session token from a file")
	conversation := flag.String("conversation", "", "conversation to join on start")
	history := flag.Int("history", 20, "messages of history to print on join (0 disables)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: load config: %v\n", err)
		os.Exit(1)
	}
	if *userID != "" {
		cfg.User.ID = *userID
	}
	if *token != "" {
		cfg.User.Token = *token
	}
	if *tokenFile != "" {
		cfg.User.TokenFile = *tokenFile
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting chatctl",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := run(cfg, *conversation, *history, logger); err != nil {
		logger.Error("chatctl failed", "error", err)
		logCloser.Close()
		os.Exit(1)
	}

	logger.Info("chatctl stopped")
}

func run(cfg *config.Config, conversation string, history int, logger *slog.Logger) error {
	creds, err := auth.LoadCredentials(cfg.User.ID, cfg.User.Token, cfg.User.TokenFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("credentials loaded", "creds", creds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := newConsole(os.Stdout)

	mgr := connection.NewManager(managerConfig(cfg.Realtime), connection.WithLogger(logger))
	defer mgr.Close()

	unsubscribe := out.watch(mgr, model.ID(creds.UserID), logger)
	defer unsubscribe()

	rooms := chat.NewRooms(mgr, logger)
	defer rooms.Close()

	apiClient := api.NewClient(
		cfg.API.BaseURL,
		creds.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	if cfg.Archive.Enabled {
		stopArchive, err := startArchive(ctx, cfg, mgr, rooms, apiClient, logger)
		if err != nil {
			return err
		}
		defer stopArchive()
	}

	sh := &shell{
		session:     mgr,
		rooms:       rooms,
		history:     apiClient,
		userID:      model.ID(creds.UserID),
		historySize: history,
		reconnect:   func() error { return mgr.Connect(creds.UserID, creds.Token) },
		out:         out,
		logger:      logger,
	}

	if err := mgr.Connect(creds.UserID, creds.Token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if conversation != "" {
		sh.join(ctx, conversation)
	}

	lines := make(chan string)
	go scanLines(os.Stdin, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sh.run(gctx, lines)
	})
	g.Go(func() error {
		return watchExpiry(gctx, creds, logger)
	})

	out.printf("connected as %s, type /help for commands", creds.UserID)

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// managerConfig maps the realtime section onto the session manager. The
// manager treats a negative attempt limit as no reconnection.
func managerConfig(rc config.RealtimeConfig) connection.ManagerConfig {
	client := connection.ClientConfig{
		URL:          rc.URL,
		PingInterval: rc.PingInterval,
		PingTimeout:  rc.PingTimeout,
		WriteTimeout: rc.WriteTimeout,
		BufferSize:   rc.BufferSize,
	}
	return connection.ManagerConfig{
		Client:               client,
		HandshakeTimeout:     rc.HandshakeTimeout,
		AckTimeout:           rc.AckTimeout,
		ReconnectBaseDelay:   rc.ReconnectBaseDelay,
		ReconnectMaxDelay:    rc.ReconnectMaxDelay,
		MaxReconnectAttempts: rc.MaxReconnectAttempts,
	}
}

// startArchive connects to the database and archives every inbound message.
// A backfill poller re-reads joined conversations on an interval and after
// each reconnect; the archive ignores rows it already holds.
func startArchive(
	ctx context.Context,
	cfg *config.Config,
	mgr connection.Manager,
	rooms *chat.Rooms,
	history *api.Client,
	logger *slog.Logger,
) (func(), error) {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := archive.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	// Shutdown is driven by the returned stop function, not by ctx.
	bg := context.WithoutCancel(ctx)

	w := archive.NewWriter(archive.Config{
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
	}, pool, logger)
	if err := w.Start(bg); err != nil {
		pool.Close()
		return nil, err
	}

	backfill := poller.New(poller.Config{
		Interval:    cfg.Archive.BackfillInterval,
		Concurrency: cfg.Archive.BackfillConcurrency,
		Timeout:     cfg.API.Timeout,
		PageSize:    cfg.Archive.BackfillPageSize,
	}, history, rooms, poller.MessageHandlerFunc(func(m model.Message) {
		w.Enqueue(m)
	}), logger)
	if err := backfill.Start(bg); err != nil {
		w.Stop(bg)
		pool.Close()
		return nil, err
	}

	stopMessages := chat.OnNewMessage(mgr, logger, func(m model.Message) {
		w.Enqueue(m)
	})
	stopObserver := mgr.ObserveConnection(func(ev connection.ConnectionEvent) {
		if ev.Status == connection.StatusConnected {
			backfill.Trigger()
		}
	})

	return func() {
		stopObserver()
		stopMessages()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		backfill.Stop(shutdownCtx)
		w.Stop(shutdownCtx)
		pool.Close()

		logger.Info("archive stopped", "writer", w.Stats(), "backfill", backfill.Stats())
	}, nil
}

// watchExpiry warns shortly before the session token expires and fails
// once it has.
func watchExpiry(ctx context.Context, creds auth.Credentials, logger *slog.Logger) error {
	if creds.ExpiresAt.IsZero() {
		<-ctx.Done()
		return nil
	}

	warnAt := time.Until(creds.ExpiresAt) - time.Minute
	if warnAt > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(warnAt):
			logger.Warn("session token expires soon", "expires_at", creds.ExpiresAt)
		}
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(time.Until(creds.ExpiresAt)):
		return auth.ErrTokenExpired
	}
}

// scanLines forwards stdin lines until EOF, then closes lines.
func scanLines(f *os.File, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
