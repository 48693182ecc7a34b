package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/habedi/salonctl/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// skipApp marks commands that run without opening the local store.
const skipApp = "salonctl/skip-app"

// rootOptions carries the persistent flags and the per-run application.
type rootOptions struct {
	configPath string
	baseURL    string
	dataDir    string

	app    *app
	reader *bufio.Reader
}

func Execute() {
	if code := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	opts := &rootOptions{}
	rootCmd := createRootCmd(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := opts.close(); cerr != nil {
		log.Error().Err(cerr).Msg("Failed to close application resources")
	}
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		fmt.Fprintln(errOut, "Error:", describeError(err))
		return exitCode(err)
	}
	return 0
}

func createRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "salonctl",
		Short:         "Command-line client for the salon booking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipApp] == "true" {
				return nil
			}
			return opts.open(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "Override the API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Override the local data directory")

	rootCmd.AddCommand(
		signupCmd(opts),
		verifyCmd(opts),
		loginCmd(opts),
		socialCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		statusCmd(opts),
		passwordCmd(opts),
		salonsCmd(opts),
		appointmentsCmd(opts),
		favoritesCmd(opts),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

// loadConfig applies the persistent flag overrides on top of config.Load.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = version
	}
	return cfg, cfg.Validate()
}

func (o *rootOptions) open(cmd *cobra.Command) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	o.app = a
	if err := a.service.Initialize(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("Session rehydration failed")
	}
	return nil
}

func (o *rootOptions) close() error {
	if o.app == nil {
		return nil
	}
	err := o.app.close()
	o.app = nil
	return err
}

// input returns one buffered reader over the command's stdin so successive
// prompts do not lose buffered bytes.
func (o *rootOptions) input(cmd *cobra.Command) *bufio.Reader {
	if o.reader == nil {
		o.reader = bufio.NewReader(cmd.InOrStdin())
	}
	return o.reader
}
