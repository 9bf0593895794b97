package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AradIT/voipprov/internal/platform/config"
	"github.com/AradIT/voipprov/internal/platform/database"
	"github.com/AradIT/voipprov/internal/platform/logger"
	"github.com/AradIT/voipprov/internal/platform/messagebroker"
	"github.com/AradIT/voipprov/internal/provisioning/adapters/csvfile"
	"github.com/AradIT/voipprov/internal/provisioning/adapters/pbxapi"
	"github.com/AradIT/voipprov/internal/provisioning/app"
	"github.com/AradIT/voipprov/internal/provisioning/domain"
	pgrepo "github.com/AradIT/voipprov/internal/provisioning/repository/postgres"
)

const serviceName = "provisioner"

type activateFlags struct {
	domain            string
	extensions        []string
	extensionFile     string
	suffix            string
	preferCNAM        bool
	createBillable    bool
	reportOnly        bool
	createImportFiles bool
	activeFile        string
	alreadyActiveFile string
	inactiveFile      string
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "provisioner",
		Short:         "SIP device provisioning for hosted PBX subscribers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(activateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func activateCommand() *cobra.Command {
	var flags activateFlags

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate SIP devices for a domain and prepare softphone import files",
		Long: `Walks every subscriber of the given domain, screens out system and
service extensions, reconciles requested extensions against existing devices,
and buckets each subscriber into active / already-active / inactive output.
The requested extensions come from --extensions or from the column of
--file whose header starts with "ext" (the file wins when both are given).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.domain, "domain", "", "PBX domain to provision (required)")
	cmd.Flags().StringSliceVar(&flags.extensions, "extensions", nil, "extensions to activate")
	cmd.Flags().StringVar(&flags.extensionFile, "file", "", "CSV file naming the extensions to activate")
	cmd.Flags().StringVar(&flags.suffix, "suffix", "r", "suffix appended to the extension in the device address")
	cmd.Flags().BoolVar(&flags.preferCNAM, "prefer-cnam", false, "use the caller-ID name for import records when set")
	cmd.Flags().BoolVar(&flags.createBillable, "create-billable", false, "allow creating a device for extensions with no device yet")
	cmd.Flags().BoolVar(&flags.reportOnly, "report-only", false, "simulate the run without creating devices")
	cmd.Flags().BoolVar(&flags.createImportFiles, "create-import-files", false, "write the bucket CSV files")
	cmd.Flags().StringVar(&flags.activeFile, "active-file", "import_active.csv", "output file for newly activated subscribers")
	cmd.Flags().StringVar(&flags.alreadyActiveFile, "already-active-file", "import_already_active.csv", "output file for subscribers with existing devices")
	cmd.Flags().StringVar(&flags.inactiveFile, "inactive-file", "import_inactive.csv", "output file for skipped subscribers")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}

func runActivate(ctx context.Context, flags activateFlags) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		return err
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Provisioner starting", "domain", flags.domain, "report_only", flags.reportOnly)

	httpClient := &http.Client{Timeout: time.Duration(cfg.PBXAPITimeoutSeconds) * time.Second}
	pbxClient := pbxapi.NewClient(appLogger, cfg.PBXAPIBaseURL, cfg.PBXAPIToken, httpClient)

	var events app.EventPublisher
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			return err
		}
		defer natsClient.Close()
		events = natsClient
		appLogger.Info("NATS client connected", "url", cfg.NATSUrl)
	} else {
		appLogger.Info("NATS URL not configured, event publishing disabled")
	}

	var audit domain.RunAuditRepository
	if cfg.PostgresDSN != "" {
		dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize database connection pool", "error", err)
			return err
		}
		defer dbPool.Close()
		audit = pgrepo.NewPgRunAuditRepository(dbPool, appLogger)
	} else {
		appLogger.Info("Postgres DSN not configured, run audit trail disabled")
	}

	reader := csvfile.NewReader(appLogger)
	writer := csvfile.NewWriter(appLogger)

	service := app.NewProvisioningAppService(
		pbxClient,
		app.NewExtensionResolver(reader, appLogger),
		app.NewEligibilityFilter(appLogger),
		app.NewReconciler(pbxClient, pbxClient, appLogger),
		writer,
		events,
		audit,
		appLogger,
	)

	req := app.RunRequest{
		Domain:        flags.domain,
		Extensions:    flags.extensions,
		ExtensionFile: flags.extensionFile,
		Options: app.Options{
			Suffix:             flags.suffix,
			PreferCallerIDName: flags.preferCNAM,
			CreateBillable:     flags.createBillable,
			ReportOnly:         flags.reportOnly,
		},
		CreateImportFiles: flags.createImportFiles,
		ActiveFile:        exportPath(cfg.ExportPath, flags.activeFile),
		AlreadyActiveFile: exportPath(cfg.ExportPath, flags.alreadyActiveFile),
		InactiveFile:      exportPath(cfg.ExportPath, flags.inactiveFile),
	}

	summary, err := service.Run(ctx, req)
	if err != nil {
		appLogger.Error("Activation run failed", "error", err)
		return err
	}

	fmt.Printf("domain %s: %d subscribers, %d active, %d already active, %d inactive, %d blocked\n",
		summary.Domain, summary.Subscribers, summary.Active, summary.AlreadyActive, summary.Inactive, summary.Blocked)
	return nil
}

// exportPath anchors relative output files under the configured export
// directory; absolute paths pass through.
func exportPath(base, path string) string {
	if filepath.IsAbs(path) || base == "" || base == "." {
		return path
	}
	return filepath.Join(base, path)
}
