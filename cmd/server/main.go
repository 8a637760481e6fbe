package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/testlooper/wetty/api/handlers"
	"github.com/testlooper/wetty/internal/bridge"
	"github.com/testlooper/wetty/internal/config"
	"github.com/testlooper/wetty/internal/pty"
	"github.com/testlooper/wetty/internal/session"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	configPath      string
	port            int
	interpreter     string
	entryPoint      string
	requireRepoName bool
	tlsCert         string
	tlsKey          string
	staticDir       string
	logLevel        string
	dev             bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "wetty --config <config.json>",
		Short: "Serve interactive test-looper terminals over WebSockets",
		Long: `Serves a browser terminal. Each socket connection runs the configured
entry point in a pseudo-terminal for the commit and test named in the page URL:

  <interpreter> <entry-point> <config> [repoName] <commit> <test> [--ports <ports>]`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to the test-looper config file (JSON or YAML)")
	fl.IntVar(&f.port, "port", 0, "port to listen on (overrides server.wetty_port)")
	fl.StringVar(&f.interpreter, "interpreter", "", "interpreter used to run the entry point")
	fl.StringVar(&f.entryPoint, "entry-point", "", "script invoked for every session")
	fl.BoolVar(&f.requireRepoName, "require-repo-name", false, "require a repoName parameter and pass it to the entry point")
	fl.StringVar(&f.tlsCert, "tls-cert", "", "TLS certificate file (overrides server.certs.cert)")
	fl.StringVar(&f.tlsKey, "tls-key", "", "TLS private key file (overrides server.certs.private_key)")
	fl.StringVar(&f.staticDir, "static-dir", "", "directory with the terminal page and static files")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fl.BoolVar(&f.dev, "dev", false, "human readable development logging (default when stderr is a terminal)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	dev := f.dev || term.IsTerminal(int(os.Stderr.Fd()))
	logger, err := newLogger(f.logLevel, dev)
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ptyManager := pty.NewManager(log.Named("pty"))
	defer ptyManager.Close()

	sessions := session.NewManager(log.Named("sessions"))
	spawner := &bridge.PTYSpawner{Manager: ptyManager, Terminal: &cfg.Terminal}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(handlers.Recovery(log.Named("http")), handlers.AccessLog(log.Named("http")))

	handlers.NewStatusHandler(sessions).RegisterRoutes(r)
	handlers.NewTerminalHandler(ctx, cfg, sessions, spawner, log.Named("listener")).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			log.Infow("https on port", "port", cfg.Server.Port)
			errCh <- srv.ListenAndServeTLS(cfg.Server.Certs.Cert, cfg.Server.Certs.PrivateKey)
		} else {
			log.Infow("http on port", "port", cfg.Server.Port)
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked sockets are not tracked by Shutdown; the session manager
	// stops them.
	sessions.Close(shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("server shutdown", "error", err)
	}
	return nil
}

// applyFlags overrides file values with the flags that were set.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("port") {
		cfg.Server.Port = f.port
	}
	if fl.Changed("interpreter") {
		cfg.Terminal.Interpreter = f.interpreter
	}
	if fl.Changed("entry-point") {
		cfg.Terminal.EntryPoint = f.entryPoint
	}
	if fl.Changed("require-repo-name") {
		cfg.Terminal.RequireRepoName = f.requireRepoName
	}
	if fl.Changed("static-dir") {
		cfg.Server.StaticDir = f.staticDir
	}
	if fl.Changed("tls-cert") || fl.Changed("tls-key") {
		if cfg.Server.Certs == nil {
			cfg.Server.Certs = &config.Certs{}
		}
		if f.tlsCert != "" {
			cfg.Server.Certs.Cert = f.tlsCert
		}
		if f.tlsKey != "" {
			cfg.Server.Certs.PrivateKey = f.tlsKey
		}
	}
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}
