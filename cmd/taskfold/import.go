package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"taskfold/internal/errs"
	"taskfold/internal/importer"
)

// previewLimit caps the tasks printed by a dry run.
const previewLimit = 20

func (a *app) importCmd() *cobra.Command {
	var (
		opts   importer.Options
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import <format> <file>",
		Short: "Import tasks from another tool",
		Long: `Import tasks exported from another tool. Supported formats: ` + strings.Join(importer.SupportedFormats(), ", ") + `.

Each project becomes a list of the same name; tasks without a project go to
--list. Tasks whose title already exists in the target list are skipped, so
running an import twice adds nothing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			imp := importer.GetImporter(args[0])
			if imp == nil {
				return errs.Errorf(errs.Validation, "unknown format %q (supported: %s)",
					args[0], strings.Join(importer.SupportedFormats(), ", "))
			}
			f, err := os.Open(args[1])
			if err != nil {
				return errs.Wrap(errs.IO, "open import file", err)
			}
			defer f.Close()

			if dryRun {
				tasks, err := imp.Preview(f)
				if err != nil {
					return errs.Wrap(errs.Validation, "parse "+args[1], err)
				}
				a.printPreview(tasks, opts)
				return nil
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			result, err := imp.Import(f, repo, opts)
			if err != nil {
				return errs.Wrap(errs.Validation, "import "+args[1], err)
			}
			for _, l := range result.Lists {
				a.printf("Created list %s\n", l)
			}
			for _, msg := range result.Errors {
				a.printf("%s %s\n", a.styles.ErrorStyle.Render("✗"), msg)
			}
			a.success("Imported %d task(s) from %s, skipped %d existing", result.Imported, imp.Name(), result.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.DefaultList, "list", "l", "", "list for tasks without a project (default: last opened list)")
	cmd.Flags().BoolVar(&opts.IgnoreProjects, "ignore-projects", false, "put every task into --list")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be imported without writing")
	return cmd
}

func (a *app) printPreview(tasks []importer.PreviewTask, opts importer.Options) {
	a.printf("%d task(s) would be imported:\n", len(tasks))
	for i, t := range tasks {
		if i == previewLimit {
			a.printf("  ... and %d more\n", len(tasks)-previewLimit)
			break
		}
		check := a.styles.TaskCheckboxPending
		if t.Done {
			check = a.styles.TaskCheckboxDone
		}
		indent := "  "
		if t.Parent >= 0 {
			indent = "      "
		}
		line := indent + check + " " + t.Text
		if t.Project != "" && !opts.IgnoreProjects {
			line += "  " + a.styles.LabelStyle.Render("→ "+t.Project)
		}
		a.printf("%s\n", line)
	}
}
