// Package cmd defines and implements the CLI commands for the seo-orchestrator
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-orchestrator/internal/config"
	"github.com/JakeFAU/seo-orchestrator/internal/scheduler"
	"github.com/JakeFAU/seo-orchestrator/internal/seo"
	"github.com/JakeFAU/seo-orchestrator/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Tests inject a fake.
type App interface {
	Run(ctx context.Context) error
	RunTask(ctx context.Context, name seo.TaskName, opts seo.TaskOptions) (seo.TaskResult, error)
	Health(ctx context.Context) (seo.HealthReport, error)
	Status(ctx context.Context, recent int) (server.Summary, error)
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

var _ App = (*server.App)(nil)

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return server.Build(ctx, cfg, server.Options{ConfigPath: path})
}

// rootCommand is the cobra root plus the application its pre-run hook built.
// cobra skips post-run hooks when RunE fails, so the app is closed by execute
// instead.
type rootCommand struct {
	*cobra.Command
	app App
}

// newRootCmd creates and configures the root command.
func newRootCmd() *rootCommand {
	root := &rootCommand{}
	cmd := &cobra.Command{
		Use:   "seo-orchestrator",
		Short: "Scheduled SEO automation and technical audits for the clinic website.",
		Long: `seo-orchestrator runs the site's SEO automation: weekly technical audits,
performance monitoring, content change detection, search engine sitemap pings and
report generation. "start" runs the scheduler and the dashboard API; the other
commands run one-off operations against the same configuration.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadDotEnv(); err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			root.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}
	root.Command = cmd

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newRunCmd())
	return root
}

// execute runs the selected subcommand, then closes the application whether
// or not the subcommand succeeded.
func (r *rootCommand) execute(ctx context.Context) error {
	err := r.ExecuteContext(ctx)
	if r.app == nil {
		return err
	}
	closeErr := r.app.Close(context.WithoutCancel(ctx))
	r.app = nil
	if closeErr != nil {
		return errors.Join(err, fmt.Errorf("close application: %w", closeErr))
	}
	return err
}

// loadDotEnv reads a .env file from the working directory when present.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// describeTask formats one task row for the status command.
func describeTask(st scheduler.TaskStatus) string {
	state := "disabled"
	if st.Enabled {
		state = "enabled"
	}
	if st.Running {
		state = "running"
	}
	line := fmt.Sprintf("%-28s %-9s %s", st.Name, state, st.Schedule)
	if st.LastResult != nil {
		line += fmt.Sprintf("  last=%s", st.LastResult.Status)
	}
	return line
}
