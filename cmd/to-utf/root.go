package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stackvity/to-utf/internal/cli"
	"github.com/stackvity/to-utf/internal/cli/config"
	"github.com/stackvity/to-utf/pkg/converter"
	"github.com/stackvity/to-utf/pkg/converter/encoding"
)

var (
	// These are set during build time using -ldflags
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const versionTemplate = `{{.Name}} version {{.Version}}` + "\n"

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	var (
		cfgFile     string
		profileName string
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:   "to-utf [dir]",
		Short: "Converts the text files of a directory tree to UTF-8.",
		Long: `to-utf rewrites source files in legacy character encodings as UTF-8, in place.

For every file it:
  - honours a byte-order mark when present,
  - otherwise runs statistical charset detection,
  - and falls back to the default encoding (ISO-8859-1) when detection is inconclusive.

Converted files keep a .backup copy unless --no-backup is given. A cache in
the tree root skips files that are already converted under the same settings.
Use --dry-run to only list the detected encodings.`,
		Version:      versionString(),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if cmd.Flags().Changed("input") {
					return fmt.Errorf("%w: give the directory either as argument or with --input, not both", converter.ErrConfigValidation)
				}
				if err := cmd.Flags().Set("input", args[0]); err != nil {
					return err
				}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			opts, logger, err := config.LoadAndValidate(cfgFile, profileName, version, verbose, cmd.Flags())
			if err != nil {
				return err
			}
			return cli.Run(ctx, opts, logger, cmd.OutOrStdout())
		},
	}
	rootCmd.SetVersionTemplate(versionTemplate)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is search ., $HOME/.config/to-utf/, $HOME/.to-utf/)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Name of configuration profile to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging output (disables TUI)")
	rootCmd.PersistentFlags().StringP("input", "i", "", "Directory tree to convert (or pass it as argument)")

	config.RegisterFlags(rootCmd.Flags())

	rootCmd.AddCommand(newCharsetsCmd(), newVersionCmd())
	return rootCmd
}

func newCharsetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "charsets",
		Short: "Lists the encodings accepted by --default-encoding.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			system, fromLocale := encoding.SystemDefault()
			out := cmd.OutOrStdout()
			for _, name := range encoding.Available() {
				line := name
				if fromLocale && name == system {
					line += " (system default)"
				}
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints the version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "to-utf version %s\n", versionString())
			return err
		},
	}
}

// Execute runs the root command and returns the process exit code.
// Cobra prints the error itself.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}
