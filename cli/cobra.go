package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/kvesta/verity/config"
	"github.com/kvesta/verity/internal"
	vlog "github.com/kvesta/verity/internal/log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rootCmd = &cobra.Command{
		Use:   "verity [OPTIONS]",
		Short: "Container vulnerability scan validation",
		Long: `Verity checks the findings of a container vulnerability scan against a running
instance of the scanned image and reports which ones hold up.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initApp,
	}

	// set at build time
	version = "dev"

	cfgFile    string
	reportFile string

	runner *internal.Runner
	// releases the log file
	logCloser io.Closer
)

func Execute() error {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "application config file (default .verity.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringP("output", "o", "output", "output directory")
	rootCmd.PersistentFlags().String("format", "json", "document format, json or yaml")
	rootCmd.PersistentFlags().String("db", "", "sqlite database keeping the run history")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to a file")
	rootCmd.PersistentFlags().Bool("structured", false, "log as json")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "no console logging")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate scan findings against a running container",
		Long: `Examples:
  # Scan an image with trivy and validate the findings
  $ verity validate image debian:bookworm

  # Validate an existing CycloneDX report
  $ verity validate report -f debian_bookworm_vuln.json debian:bookworm

  # Keep one container for the whole run
  $ verity validate image --share-session alpine:3.19`,
		Args: NoArgs,
	}
	validateCmd.PersistentFlags().Bool("share-session", false, "use one container for all stages")
	validateCmd.PersistentFlags().String("scanner", "trivy", "scanner executable")
	validateCmd.PersistentFlags().Duration("scanner-timeout", 0, "scanner timeout, 0 keeps the configured value")

	imageCheck := &cobra.Command{
		Use:   "image IMAGE",
		Short: "Scan an image and validate its findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runner.DoValidateImage(cmd.Context(), args[0])
		},
	}

	reportCheck := &cobra.Command{
		Use:   "report -f REPORT IMAGE",
		Short: "Validate the findings of an existing report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runner.DoValidateReport(cmd.Context(), reportFile, args[0])
		},
	}
	reportCheck.Flags().StringVarP(&reportFile, "file", "f", "", "path of the CycloneDX report")
	_ = reportCheck.MarkFlagRequired("file")

	parseCmd := &cobra.Command{
		Use:   "parse REPORT",
		Short: "Parse a report without validating it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runner.DoParse(args[0])
			return err
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and quit",
		Args:  NoArgs,
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "verity %s %s/%s %s\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}

	bindFlags(rootCmd, map[string]string{
		"verbose":    "verbose",
		"output":     "output.dir",
		"format":     "output.format",
		"db":         "output.db",
		"log-file":   "log.file",
		"structured": "log.structured",
		"quiet":      "log.quiet",
	})
	bindFlags(validateCmd, map[string]string{
		"share-session": "pipeline.share_session",
		"scanner":       "scanner.binary",
	})

	validateCmd.AddCommand(imageCheck)
	validateCmd.AddCommand(reportCheck)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, config.Red(err.Error()))
	}
	return err
}

func initApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadApplicationConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	if timeout, ferr := cmd.Flags().GetDuration("scanner-timeout"); ferr == nil && timeout > 0 {
		cfg.Scanner.Timeout = timeout
	}

	logger, closer, err := vlog.New(vlog.Config{
		Level:        cfg.Log.Level,
		Structured:   cfg.Log.Structured,
		FileLocation: cfg.Log.FileLocation,
		Quiet:        cfg.Log.Quiet,
	})
	if err != nil {
		return err
	}
	logCloser = closer
	logger.Debugf("Application config:\n%s", config.Pink(cfg.String()))

	runner = &internal.Runner{
		Cfg: cfg,
		Log: logger,
		Out: cmd.OutOrStdout(),
	}
	return nil
}
