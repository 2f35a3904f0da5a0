package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loadq/internal/banner"
)

const envPrefix = "LOADQ"

var logger = zerolog.New(
	zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()

// exitError carries the process exit status for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile, envFile string

	rootCmd := &cobra.Command{
		Use:   "loadq [flags] URL",
		Short: "loadq - HTTP load generator",
		Long: `
loadq sends a fixed number of HTTP requests to a URL with bounded
concurrency and reports latency percentiles and throughput.

Request bodies can be a literal, a file, every file in a directory or the
files listed in a manifest. Responses can be written to disk, one JSON file
per request.

On a terminal the run is shown in a live view; otherwise a plain progress
line is printed. Use --debug to send a single request and print the raw
response.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile, envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var s settings
			if err := v.Unmarshal(&s); err != nil {
				return exitWith(1, fmt.Errorf("decode settings: %w", err))
			}
			return runLoad(cmd, s, args[0])
		},
	}

	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.loadq.yaml)")
	pf.StringVar(&envFile, "env-file", "", "load environment variables from this file (default is .env when present)")
	pf.BoolP("verbose", "v", false, "enable debug logging")
	pf.String("history-file", "", "run history database (default is $HOME/.loadq/history.db)")

	f := rootCmd.Flags()
	f.IntP("requests", "n", 0, "total number of requests to send")
	f.IntP("concurrency", "c", 0, "number of requests in flight at a time")
	f.StringP("method", "X", "GET", "HTTP method: GET, HEAD, POST, PUT, PATCH or DELETE")
	f.StringArrayP("header", "H", nil, `HTTP header in "Name: Value" form, repeatable`)
	f.StringP("data", "d", "", "literal request body")
	f.StringP("data-file", "D", "", "read the request body from a file")
	f.StringP("data-dir", "i", "", "send the files of a directory as request bodies")
	f.StringP("manifest", "m", "", "send the files listed in a manifest as request bodies")
	f.String("order", "sequential", "body file order for --data-dir and --manifest: sequential or random")
	f.Bool("template", false, "render request bodies as templates ({{seq}}, {{requestID}}, sprig functions)")
	f.StringP("output", "o", "", "write every response to this directory as JSON")
	f.String("cacert", "", "PEM file with additional CA certificates")
	f.String("cert", "", "PEM client certificate (requires --key)")
	f.String("key", "", "PEM client private key (requires --cert)")
	f.BoolP("insecure", "k", false, "skip TLS certificate verification")
	f.Duration("timeout", 0, "timeout for a single request, 0 for none")
	f.Bool("debug", false, "send one request and print the raw response")
	f.Bool("no-tui", false, "print a plain progress line even on a terminal")
	f.Bool("no-history", false, "do not record the run in the history database")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.Bool("fail-on-error", false, "exit with status 2 when any request failed")

	if err := v.BindPFlags(pf); err != nil {
		panic(err)
	}
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(newHistoryCmd(v))
	rootCmd.AddCommand(newTargetCmd())

	return rootCmd
}

// initConfig loads the env file, then the config file, and enables LOADQ_*
// environment variables.
func initConfig(v *viper.Viper, cfgFile, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return exitWith(1, fmt.Errorf("load env file: %w", err))
		}
	} else {
		_ = godotenv.Load()
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	used, err := readConfig(v, cfgFile)
	if err != nil {
		return err
	}

	setLogLevel(v.GetBool("verbose"))
	if used {
		logger.Debug().Str("file", v.ConfigFileUsed()).Msg("using config file")
	}
	return nil
}

// readConfig reads the config file, reporting whether one was found. Only an
// explicitly given file is required to exist.
func readConfig(v *viper.Viper, cfgFile string) (bool, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return false, nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".loadq")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return false, nil
		}
		return false, exitWith(1, fmt.Errorf("read config: %w", err))
	}
	return true, nil
}

func setLogLevel(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
}

// Execute runs the root command and exits with its status.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}
