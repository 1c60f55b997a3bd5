package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deepukochumon/ecg-analyzer/internal/application"
	"github.com/deepukochumon/ecg-analyzer/internal/application/analysis"
	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/analyzer"
	historydb "github.com/deepukochumon/ecg-analyzer/internal/infra/db"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/preview"
	minioStore "github.com/deepukochumon/ecg-analyzer/internal/infra/storage"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/terminal"
)

type analyzeOptions struct {
	model  string
	user   string
	out    string
	asJSON bool
}

func newAnalyzeCmd(env *cliEnv) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze one ECG image (.jpg, .jpeg, .png)",
		Long: `Analyze uploads FILE with the selected model, prints the report and writes
the returned document. With --user the report is also saved to that user's history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, env, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.model, "model", "m", "v1", "analysis model (v1 or v2)")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "save the report to this user's history")
	cmd.Flags().StringVarP(&opts.out, "out", "o", ecg.DocumentFileName, "where to write the report document (empty to skip)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	return cmd
}

func runAnalyze(cmd *cobra.Command, env *cliEnv, path string, opts analyzeOptions) error {
	ctx := cmd.Context()
	variant, err := ecg.ParseModelVariant(opts.model)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	notes := newPrintNotifier(cmd.ErrOrStderr())
	var bridge *history.Bridge
	if opts.user != "" {
		db, repo, err := historydb.Open(ctx, env.cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()
		bridge = &history.Bridge{Repo: repo, Notifier: notes, Clock: application.SystemClock{}, Log: env.log}
		if env.cfg.Minio.Enabled {
			store, err := minioStore.New(ctx, env.cfg.Minio.Endpoint, env.cfg.Minio.Region, env.cfg.Minio.BucketName,
				env.cfg.Minio.AccessKey, env.cfg.Minio.SecretKey, env.cfg.Minio.UseSSL)
			if err != nil {
				return fmt.Errorf("minio init: %w", err)
			}
			bridge.Artifacts = store
		}
	}

	s := analysis.NewSession(uuid.New().String(), opts.user, analysis.Deps{
		Validator: intake.Validator{MaxBytes: env.cfg.Limits.MaxFileBytes},
		Previews:  preview.NewRegistry(),
		Transport: analyzer.NewClient(env.cfg.Analyzer.BaseURL, env.cfg.AnalyzerTimeout()),
		Decoder:   analyzer.Decoder{},
		History:   bridge,
		Notifier:  notes,
		Log:       env.log,
	})
	defer s.Close()

	view := terminal.New(cmd.OutOrStdout())
	f, err := s.AddFile(ctx, filepath.Base(path), "", data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "analyzing", view.File(f), "with model", variant)

	resp, err := s.Dispatch(ctx, variant)
	if err != nil {
		return err
	}
	if bridge != nil {
		bridge.Wait()
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"model":    variant.String(),
			"report":   resp.ReportText,
			"segments": s.Segments(),
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), view.Report(s.Segments()))
	}

	if opts.out != "" && resp.HasDocument() {
		if err := os.WriteFile(opts.out, resp.DocumentBytes, 0o644); err != nil {
			return fmt.Errorf("write document: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "document saved to", opts.out)
	}
	return nil
}
