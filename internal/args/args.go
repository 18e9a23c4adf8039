package args

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/spf13/cobra"

	"github.com/markis/saxpush/internal/config"
)

// ErrNoRun is returned when the command line only asked for help.
var ErrNoRun = errors.New("nothing to run")

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Source      string
	HTML        bool
	Recover     bool
	ChunkSize   int
	Format      string
	Color       bool
	Wrap        int
	Timeout     time.Duration
	MetricsFile string
	Verbosity   int
}

// ParseArgs parses argv on top of the configuration, returning an Arguments struct.
// Flags override configuration values; the result is validated the same way a
// configuration file is.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string) (Arguments, error) {
	args := Arguments{Source: "-"}
	var (
		plain bool
		ran   bool
	)

	rootCmd := &cobra.Command{
		Use:   "saxpush [flags] [source]",
		Short: "Stream an XML or HTML document through a push parser and print its SAX events",
		Long: "saxpush reads a file, a URL or stdin (\"-\") in chunks, pushes each chunk into an\n" +
			"incremental SAX parser and prints the events as they are produced.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			ran = true
			if len(cmdArgs) > 0 {
				args.Source = cmdArgs[0]
			}
			return nil
		},
		SilenceErrors: true, // We'll handle error reporting
		SilenceUsage:  true, // We'll handle usage display
	}

	flags := rootCmd.Flags()
	flags.BoolVar(&args.HTML, "html", cfg.HTML(), "Parse the input as HTML")
	flags.BoolVar(&args.Recover, "recover", cfg.Recover, "Keep parsing after syntax errors")
	flags.StringVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Largest chunk pushed at once (e.g. 512B, 4KiB, 1MB)")
	flags.StringVar(&cfg.Format, "format", cfg.Format, "Output format: plain, json, bson or markdown")
	flags.BoolVar(&plain, "plain", false, "Plain output without colors")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Give up after this long (0 disables)")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file")
	flags.IntVar(&cfg.Render.Wrap, "wrap", cfg.Render.Wrap, "Wrap width of the markdown summary")
	flags.CountVarP(&args.Verbosity, "verbose", "v", "Increase log verbosity (repeatable)")

	if argv == nil {
		argv = []string{} // cobra falls back to os.Args on nil
	}
	rootCmd.SetArgs(argv)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	if !ran {
		return Arguments{}, ErrNoRun
	}

	if args.HTML {
		cfg.Mode = "html"
	} else {
		cfg.Mode = "xml"
	}
	if plain {
		cfg.Format = "plain"
		cfg.Render.Color = "never"
	}
	if err := cfg.Validate(); err != nil {
		return Arguments{}, fmt.Errorf("invalid arguments: %w", err)
	}

	size, err := cfg.ChunkBytes()
	if err != nil {
		return Arguments{}, err
	}
	args.ChunkSize = size
	args.Format = cfg.Format
	args.Timeout = cfg.Timeout
	args.MetricsFile = cfg.MetricsFile
	args.Wrap = cfg.Render.Wrap
	args.Color = useColor(cfg)

	return args, nil
}

// useColor determines if colored output should be used based on configuration and terminal settings.
func useColor(cfg config.Config) bool {
	switch cfg.Render.Color {
	case "always":
		return true
	case "never":
		return false
	}

	// Check for TERM=dumb
	if os.Getenv("TERM") == "dumb" {
		return false
	}

	// NO_COLOR, CLICOLOR and redirected output
	return term.FromEnv().IsColorEnabled()
}
