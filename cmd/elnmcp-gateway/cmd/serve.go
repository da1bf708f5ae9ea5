package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/spf13/cobra"

	auditsink "github.com/elnmcp/gateway/internal/adapter/outbound/audit"
	"github.com/elnmcp/gateway/internal/adapter/outbound/elnapi"
	"github.com/elnmcp/gateway/internal/adapter/inbound/stdio"
	"github.com/elnmcp/gateway/internal/config"
	"github.com/elnmcp/gateway/internal/domain/audit"
	"github.com/elnmcp/gateway/internal/domain/folderpath"
	"github.com/elnmcp/gateway/internal/domain/scope"
	"github.com/elnmcp/gateway/internal/port/outbound"
	"github.com/elnmcp/gateway/internal/service"
)

var devFlag bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server, serving JSON-RPC over stdio",
	Long: `Run the ELN MCP gateway: read JSON-RPC 2.0 requests from stdin, one
object per line, and write responses to stdout. Diagnostic and audit
output goes to stderr, never stdout, so it never corrupts the wire
stream.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devFlag, "dev", false, "force debug logging (never relaxes scope enforcement)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return exitErr(1, fmt.Errorf("failed to load config: %w", err))
	}
	if devFlag {
		cfg.DevMode = true
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return exitErr(1, fmt.Errorf("config validation failed: %w", err))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := verifySecretAgainstHash(cfg.Auth); err != nil {
		return exitErr(2, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	sink, closeSink, err := buildAuditSink(cfg.Audit, logger)
	if err != nil {
		return exitErr(3, fmt.Errorf("failed to build audit sink: %w", err))
	}
	defer closeSink()

	emitter := service.NewAuditEmitter(sink, logger,
		service.WithCapacity(cfg.Audit.Capacity),
		service.WithFlushInterval(cfg.Audit.FlushInterval),
		service.WithTerminateOnOverflow(cfg.Audit.TerminateOnOverflow),
	)
	emitter.Start(ctx)
	defer emitter.Stop(cfg.Server.AuditDrainTimeout)

	emitter.Record(audit.Event{Timestamp: time.Now().UTC(), Type: audit.EventProcessStart, Outcome: audit.OutcomeOK})
	defer emitter.Record(audit.Event{Timestamp: time.Now().UTC(), Type: audit.EventProcessStop, Outcome: audit.OutcomeOK})

	resourceManager, authManager, err := buildResourceManager(cfg, emitter, logger)
	if err != nil {
		return exitErr(2, err)
	}
	if err := authManager.EnsureAuthenticated(ctx); err != nil {
		return exitErr(2, fmt.Errorf("authenticate against upstream ELN API: %w", err))
	}

	dispatcher := stdio.NewDispatcher(resourceManager, emitter, logger, Version)

	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(runCtx, os.Stdin, os.Stdout) }()

	select {
	case err := <-done:
		cancelRun()
		if err != nil {
			return exitErr(3, err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight request")
		select {
		case err := <-done:
			if err != nil {
				logger.Error("dispatcher exited with error during shutdown", "error", err)
			}
		case <-time.After(cfg.Server.ShutdownDrainTimeout):
			logger.Warn("shutdown drain timeout exceeded, forcing exit")
			cancelRun()
		}
		// exitErr calls os.Exit, which skips the deferred drain above.
		emitter.Stop(cfg.Server.AuditDrainTimeout)
		closeSink()
		return exitErr(130, nil)
	}
}

// authHandle breaks the construction-order cycle between AuthManager
// (which needs an outbound.ELNRequester to call the user-info endpoint)
// and elnapi.Client (which needs an outbound.Authenticator to attach
// credentials). It is a thin credential-provider indirection: the
// Client is built first against authHandle, then am is set once the
// real AuthManager exists.
type authHandle struct {
	am *service.AuthManager
}

func (h *authHandle) CurrentCredentials(ctx context.Context) (outbound.Credentials, error) {
	return h.am.CurrentCredentials(ctx)
}

func (h *authHandle) EnsureAuthenticated(ctx context.Context) error {
	return h.am.EnsureAuthenticated(ctx)
}

func (h *authHandle) HandleUnauthorized(ctx context.Context) error {
	return h.am.HandleUnauthorized(ctx)
}

var _ outbound.Authenticator = (*authHandle)(nil)

func buildResourceManager(cfg *config.Config, emitter *service.AuditEmitter, logger *slog.Logger) (*service.ResourceManager, *service.AuthManager, error) {
	scopeCfg, err := buildScopeConfig(cfg.Scope)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid scope configuration: %w", err)
	}

	elnCfg := elnapi.Config{
		BaseURL:           cfg.ELN.BaseURL,
		BackupURLs:        cfg.ELN.BackupURLs,
		Timeout:           cfg.ELN.Timeout,
		ConnectTimeout:    cfg.ELN.ConnectTimeout,
		MaxRetries:        cfg.ELN.MaxRetries,
		InitialBackoff:    cfg.ELN.InitialBackoff,
		MaxBackoff:        cfg.ELN.MaxBackoff,
		BackoffMultiplier: cfg.ELN.BackoffMultiplier,
		Jitter:            cfg.ELN.Jitter,
	}

	handle := &authHandle{}
	client := elnapi.New(elnCfg, handle, logger)

	authMode := outbound.AuthModeAPIKey
	if cfg.Auth.Mode == config.AuthModeUserToken {
		authMode = outbound.AuthModeUserToken
	}
	authManagerCfg := service.AuthManagerConfig{
		Mode:        authMode,
		AccessKeyID: cfg.Auth.AccessKeyID,
		Username:    cfg.Auth.Username,
	}
	if authMode == outbound.AuthModeUserToken {
		authManagerCfg.Token = cfg.Auth.AccessPassword
	} else {
		authManagerCfg.AccessPassword = cfg.Auth.AccessPassword
	}

	authManager := service.NewAuthManager(authManagerCfg, client, emitter, logger)
	handle.am = authManager

	return service.NewResourceManager(scopeCfg, authManager, client, emitter), authManager, nil
}

func buildScopeConfig(s config.ScopeConfig) (scope.Config, error) {
	switch s.Mode {
	case config.ScopeModeNotebookID:
		return scope.ByNotebookID(s.NotebookID), nil
	case config.ScopeModeNotebookName:
		return scope.ByNotebookName(s.NotebookName), nil
	case config.ScopeModeFolderPath:
		return scope.ByFolderPath(folderpath.FromRaw(s.FolderPath)), nil
	case config.ScopeModeNone, "":
		return scope.None, nil
	default:
		return scope.Config{}, fmt.Errorf("unrecognized scope mode %q", s.Mode)
	}
}

func buildAuditSink(cfg config.AuditConfig, logger *slog.Logger) (audit.Sink, func(), error) {
	switch {
	case cfg.Output == "stdout":
		sink := auditsink.NewStdoutSink(os.Stderr)
		return sink, func() { _ = sink.Close() }, nil
	case strings.HasPrefix(cfg.Output, "file://"):
		dir := strings.TrimPrefix(cfg.Output, "file://")
		sink, err := auditsink.NewFileSink(auditsink.FileSinkConfig{
			Dir:           dir,
			RetentionDays: cfg.RetentionDays,
			MaxFileSizeMB: cfg.MaxFileSizeMB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported audit output: %s", cfg.Output)
	}
}

// verifySecretAgainstHash checks the runtime secret against
// AccessPasswordHash when both are configured, so a mismatched
// at-rest hash is caught as a startup error rather than a confusing
// first-request authentication failure.
func verifySecretAgainstHash(a config.AuthConfig) error {
	if a.AccessPasswordHash == "" || a.AccessPassword == "" {
		return nil
	}
	match, err := argon2id.ComparePasswordAndHash(a.AccessPassword, a.AccessPasswordHash)
	if err != nil {
		return fmt.Errorf("verify access_password against access_password_hash: %w", err)
	}
	if !match {
		return fmt.Errorf("runtime secret does not match configured access_password_hash")
	}
	return nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// exitErr maps a fatal condition to the process's exit codes: 0 graceful,
// 1 config invalid, 2 auth failed at startup, 3 runtime fatal, 130
// SIGINT. A nil err with a non-zero code (graceful/signal exit) still
// prints nothing; a non-nil err is reported on stderr directly here so
// RunE's own error does not duplicate the message cobra would
// otherwise print.
func exitErr(code int, err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
	return nil
}
