package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/housekeeping"
	"github.com/vitrinehq/vitrine/internal/queue"
	"github.com/vitrinehq/vitrine/internal/server"
	"github.com/vitrinehq/vitrine/internal/service"
)

const banner = `
__   _____ _____ ___ ___ _  _ ___
\ \ / /_ _|_   _| _ \_ _| \| | __|
 \ V / | |  | | |   /| || .  | _|
  \_/ |___| |_| |_|_\___|_|\_|___|
`

func newServeCmd() *cobra.Command {
	var (
		dev        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the back office API server",
		Long:  "Start the HTTP server that exposes the session and admin management APIs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runBackground()
			}
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Development mode: debug logging, generated secrets, insecure cookies")
	cmd.Flags().BoolVarP(&background, "background", "d", false, "Run the server detached, logging to the data directory")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// runBackground re-executes serve detached from the terminal.
func runBackground() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a == "--background" || a == "-d" {
			continue
		}
		args = append(args, a)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	fmt.Printf("Vitrine server started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	return child.Process.Release()
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := newLogger(settings.Logging, dev)

	if dev {
		if err := devSettings(&settings, logger); err != nil {
			return err
		}
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 1. Credential store
	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store initialized", "driver", store.Driver(), "data_dir", settings.Database.DataDir)

	// 2. Audit trail: the store always, the broker when configured
	sinks := []service.Sink{service.StoreSink{Store: store}}
	var publisher *queue.Publisher
	if settings.Audit.AMQPURL != "" {
		publisher = queue.NewPublisher(settings.Audit.AMQPURL, settings.Audit.AMQPQueue, logger)
		sinks = append(sinks, publisher)
		logger.Info("audit broker sink enabled", "queue", settings.Audit.AMQPQueue)
	}
	audit := service.NewEmitter(logger, settings.Audit.Buffer, sinks...)

	// 3. Account service
	accounts := service.NewAccountService(store, settings, audit, logger, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := store.CountAdmins(ctx)
	if err != nil {
		logger.Warn("failed to count admin accounts", "error", err)
	}
	if n == 0 {
		logger.Warn("no admin account found - POST /api/v1/auth/register or run: vitrine admin bootstrap")
	}

	// 4. Login attempt housekeeping
	sweeper := housekeeping.New(accounts.Ledger(), store, logger)
	sweeper.Start()

	// 5. HTTP server
	srv := server.New(settings, store, accounts, logger)

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write PID file", "error", err)
	}
	defer removePID()

	host, port := settings.Server.Host, settings.Server.Port
	fmt.Printf("→ Vitrine %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", host, port)
	fmt.Println()

	serveErr := srv.ListenAndServe(ctx)

	cancel()
	sweeper.Shutdown()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := audit.Close(drainCtx); err != nil {
		logger.Warn("audit trail did not drain", "error", err)
	}
	if publisher != nil {
		publisher.Close()
	}
	return serveErr
}

// devSettings fills in what a local run needs: generated signing secrets when
// none are configured and cookies usable over plain HTTP.
func devSettings(s *config.Settings, logger *slog.Logger) error {
	s.Server.SecureCookies = false
	if s.Auth.AccessSecret != "" && s.Auth.RefreshSecret != "" {
		return nil
	}
	access, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generate access secret: %w", err)
	}
	refresh, err := randomSecret()
	if err != nil {
		return fmt.Errorf("generate refresh secret: %w", err)
	}
	s.Auth.AccessSecret, s.Auth.RefreshSecret = access, refresh
	logger.Warn("using generated signing secrets; sessions will not survive a restart")
	return nil
}
