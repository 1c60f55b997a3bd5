package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deepukochumon/ecg-analyzer/internal/config"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/terminal"
	"github.com/deepukochumon/ecg-analyzer/internal/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// pipeline failures were already shown as notifications
		if _, ok := ecg.AsError(err); !ok {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// cliEnv is filled by the root command before any subcommand runs.
type cliEnv struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{}
	var (
		cfgFile string
		verbose bool
	)

	root := &cobra.Command{
		Use:           "ecgctl",
		Short:         "Analyze ECG images from the command line",
		Long:          `ecgctl uploads an ECG image to the analysis service, prints the formatted report and saves the Word document.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			env.cfg = cfg
			level := "warn"
			if verbose {
				level = "debug"
			}
			env.log = logging.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}, level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(newAnalyzeCmd(env))
	root.AddCommand(newHistoryCmd(env))
	return root
}

// loadConfig falls back to defaults when no file is given and none exists.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	path = config.Path()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// printNotifier shows notifications as status lines on the terminal.
type printNotifier struct {
	mu   sync.Mutex
	w    io.Writer
	view *terminal.Renderer
}

func newPrintNotifier(w io.Writer) *printNotifier {
	return &printNotifier{w: w, view: terminal.New(w)}
}

func (p *printNotifier) Notify(ctx context.Context, n ecg.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, p.view.Notification(n))
	return err
}
