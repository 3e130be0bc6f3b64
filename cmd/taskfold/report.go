package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskfold/internal/errs"
	"taskfold/internal/fsutil"
	"taskfold/internal/reports"
)

func (a *app) reportCmd() *cobra.Command {
	var (
		weekly bool
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "report [YYYY-MM-DD]",
		Short: "Summarize completed, added and due tasks",
		Long: `Generate a daily (default) or weekly report of the workspace. Weeks start
on Sunday; the date picks the day or the week containing it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format == "md" {
				format = "markdown"
			}
			if format != "markdown" && format != "json" {
				return errs.Errorf(errs.Validation, "invalid format %q; use markdown or json", format)
			}
			date := a.now().Local()
			if len(args) == 1 {
				d, err := time.ParseInLocation("2006-01-02", args[0], time.Local)
				if err != nil {
					return errs.Errorf(errs.Validation, "invalid date %q; use YYYY-MM-DD", args[0])
				}
				date = d
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			gen := reports.NewGenerator(repo)

			var out []byte
			if weekly {
				report, err := gen.GenerateWeekly(date)
				if err != nil {
					return err
				}
				if format == "json" {
					out, err = reports.FormatWeeklyJSON(report)
				} else {
					out = []byte(reports.FormatWeeklyMarkdown(report))
				}
				if err != nil {
					return err
				}
			} else {
				report, err := gen.GenerateDaily(date)
				if err != nil {
					return err
				}
				if format == "json" {
					out, err = reports.FormatDailyJSON(report)
				} else {
					out = []byte(reports.FormatDailyMarkdown(report))
				}
				if err != nil {
					return err
				}
			}

			if output == "" {
				a.printf("%s", out)
				if len(out) > 0 && out[len(out)-1] != '\n' {
					a.printf("\n")
				}
				return nil
			}
			if err := fsutil.WriteFileAtomic(filepath.Clean(output), out, 0600); err != nil {
				return errs.Wrap(errs.IO, "write report", err)
			}
			a.success("Report written to %s", output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&weekly, "weekly", false, "report on the whole week")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
