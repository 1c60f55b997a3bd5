package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/report"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
	historydb "github.com/deepukochumon/ecg-analyzer/internal/infra/db"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/terminal"
	"github.com/deepukochumon/ecg-analyzer/internal/middleware"
)

func newHistoryCmd(env *cliEnv) *cobra.Command {
	var (
		user     string
		page     int
		pageSize int
		asJSON   bool
		latest   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List analyses saved for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := middleware.ValidateUserID(user); err != nil {
				return err
			}
			db, repo, err := historydb.Open(cmd.Context(), env.cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer db.Close()

			bridge := &history.Bridge{Repo: repo, Log: env.log}
			if latest {
				return printLatest(cmd, bridge, user, asJSON)
			}
			list, err := bridge.List(cmd.Context(), user, middleware.ValidatePage(page), middleware.ValidateLimit(pageSize))
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
			}
			fmt.Fprintln(cmd.OutOrStdout(), terminal.New(cmd.OutOrStdout()).History(list))
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user whose history to list")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&latest, "latest", false, "show the full report of the most recent analysis")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printLatest(cmd *cobra.Command, bridge *history.Bridge, user string, asJSON bool) error {
	a, err := bridge.Latest(cmd.Context(), user)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(a)
	}
	view := terminal.New(cmd.OutOrStdout())
	fmt.Fprintln(cmd.ErrOrStderr(), terminal.New(cmd.ErrOrStderr()).History([]*domain.Analysis{a}))
	fmt.Fprintln(cmd.OutOrStdout(), view.Report(report.Format(a.Report)))
	return nil
}
