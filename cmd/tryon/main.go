package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raushankrgupta/virtual-tryon/api"
	"github.com/raushankrgupta/virtual-tryon/bootstrap"
	"github.com/raushankrgupta/virtual-tryon/config"
	"github.com/raushankrgupta/virtual-tryon/history"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/picker"
	"github.com/raushankrgupta/virtual-tryon/stream"
	"github.com/raushankrgupta/virtual-tryon/utils"
	"github.com/raushankrgupta/virtual-tryon/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tryon: %v\n", err)
		os.Exit(1)
	}
}

var verbose bool

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tryon",
		Short: "Virtual try-on client",
		Long: `tryon submits a person photo and a garment photo to the hosted try-on model and prints
the resulting image URL. It can also open the live stream page in a headless browser.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write JSON logs to stderr")
	cmd.AddCommand(newRunCmd(), newStreamCmd())
	return cmd
}

func newLogger() (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return utils.NewLogger(true)
}

func newRunCmd() *cobra.Command {
	var subject, garment, garmentURL string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one try-on job from local images",
		RunE: func(cmd *cobra.Command, args []string) error {
			if garment == "" && garmentURL == "" {
				return errors.New("one of --garment or --garment-url is required")
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runTryOn(cmd.Context(), cmd.OutOrStdout(), cfg, logger, subject, garment, garmentURL)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Path of the person photo")
	cmd.Flags().StringVar(&garment, "garment", "", "Path of the garment photo")
	cmd.Flags().StringVar(&garmentURL, "garment-url", "", "Product page to take the garment photo from")
	_ = cmd.MarkFlagRequired("subject")
	cmd.MarkFlagsMutuallyExclusive("garment", "garment-url")
	return cmd
}

func runTryOn(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, subject, garment, garmentURL string) error {
	store, err := bootstrap.ObjectStore(ctx, cfg)
	if err != nil {
		return err
	}
	connector, err := bootstrap.Connector(cfg, store, logger)
	if err != nil {
		return err
	}
	submitter, poller := bootstrap.Workflow(cfg, connector, store, logger)
	screen := workflow.NewScreen(api.LocalUser, submitter, poller, logger, history.NewRecorder(nil, store, logger))

	var last string
	screen.OnChange = func(st workflow.State) {
		if st.Loading && st.Message != "" && st.Message != last {
			last = st.Message
			fmt.Fprintln(out, st.Message)
		}
	}

	files := picker.NewFilePicker(store, map[models.Role]string{
		models.RoleSubject: subject,
		models.RoleGarment: garment,
	})
	if _, err := screen.Pick(ctx, files, models.RoleSubject); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	var garmentPicker workflow.Picker = files
	if garmentURL != "" {
		garmentPicker = picker.NewProductPagePicker(garmentURL, store)
	}
	if _, err := screen.Pick(ctx, garmentPicker, models.RoleGarment); err != nil {
		return fmt.Errorf("garment: %w", err)
	}

	if err := screen.SendToAPI(ctx); err != nil {
		if alert := screen.State().Alert; alert != "" {
			return errors.New(alert)
		}
		return err
	}

	view := screen.View()
	if !view.ResultVisible {
		fmt.Fprintln(out, "Job finished without a result image")
		return nil
	}
	fmt.Fprintln(out, view.ResultURL)
	return nil
}

func newStreamCmd() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Open the live stream page and report what it shows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), duration)
			defer cancel()

			browser, err := bootstrap.Browser(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer browser.Close()

			viewer := stream.NewViewer(browser, cfg.StreamURL, logger)
			return watchStream(ctx, cmd.OutOrStdout(), viewer)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "How long to keep the page open")
	return cmd
}

// watchStream runs viewer until ctx ends and prints its last snapshot.
func watchStream(ctx context.Context, out io.Writer, viewer *stream.Viewer) error {
	runErr := make(chan error, 1)
	go func() { runErr <- viewer.Run(ctx) }()

	var (
		snap    stream.Snapshot
		haveOne bool
	)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-runErr:
			if err != nil {
				return err
			}
			if !haveOne {
				return errors.New("stream page never loaded")
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		case <-ticker.C:
			s, err := viewer.Snapshot(ctx)
			if err == nil {
				snap, haveOne = s, true
			}
		}
	}
}
