package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scylladb/argus-sub001/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage the run registry",
}

var (
	runsCreateSubject  string
	runsCreateBuildID  string
	runsCreateStarted  string
	runsCreatePackages string
)

var runsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a run for a subject",
	RunE:  runRunsCreate,
}

var runsListSubject string

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a subject's runs",
	RunE:  runRunsList,
}

var runsShowSubject string

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run's result tables",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsIgnoreUnset bool

var runsIgnoreCmd = &cobra.Command{
	Use:   "ignore <run-id>",
	Short: "Exclude a run from charts (or include it again with --unset)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsIgnore,
}

func init() {
	runsCreateCmd.Flags().StringVar(&runsCreateSubject, "subject", "", "subject id (required)")
	runsCreateCmd.Flags().StringVar(&runsCreateBuildID, "build-id", "", "CI build identifier")
	runsCreateCmd.Flags().StringVar(&runsCreateStarted, "started", "", "start time, RFC 3339 (default now)")
	runsCreateCmd.Flags().StringVar(&runsCreatePackages, "packages", "", "path to a JSON file listing installed packages")
	runsCreateCmd.MarkFlagRequired("subject")

	runsListCmd.Flags().StringVar(&runsListSubject, "subject", "", "subject id (required)")
	runsListCmd.MarkFlagRequired("subject")

	runsShowCmd.Flags().StringVar(&runsShowSubject, "subject", "", "subject id (required)")
	runsShowCmd.MarkFlagRequired("subject")

	runsIgnoreCmd.Flags().BoolVar(&runsIgnoreUnset, "unset", false, "include the run in charts again")

	runsCmd.AddCommand(runsCreateCmd, runsListCmd, runsShowCmd, runsIgnoreCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsCreate(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(runsCreateSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}

	started := time.Now().UTC()
	if runsCreateStarted != "" {
		started, err = time.Parse(time.RFC3339, runsCreateStarted)
		if err != nil {
			return eris.Wrap(err, "parse --started")
		}
	}

	var packages []model.PackageVersion
	if runsCreatePackages != "" {
		data, err := os.ReadFile(runsCreatePackages)
		if err != nil {
			return eris.Wrap(err, "read packages file")
		}
		if err := json.Unmarshal(data, &packages); err != nil {
			return eris.Wrap(err, "parse packages file")
		}
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	run := &model.Run{
		ID:        uuid.New(),
		SubjectID: subjectID,
		BuildID:   runsCreateBuildID,
		StartedAt: started,
		Packages:  packages,
	}
	if err := st.CreateRun(cmd.Context(), run); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), run.ID)
	return nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(runsListSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), subjectID)
	if err != nil {
		return err
	}

	for _, run := range runs {
		marker := " "
		if run.Ignored {
			marker = "I"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s  %s\n",
			marker, run.ID, run.StartedAt.Format(time.RFC3339), run.BuildID)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(runsShowSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return eris.Wrap(err, "invalid run id")
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	tables, err := svc.RunResults(cmd.Context(), subjectID, runID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, table := range tables {
		fmt.Fprintf(out, "%s\n", table.Meta.Name)
		for _, row := range table.Meta.RowsMeta {
			cells, ok := table.Cells[row]
			if !ok {
				continue
			}
			fmt.Fprintf(out, "  %s:", row)
			for _, column := range table.Meta.ColumnsMeta {
				cell, ok := cells[column.Name]
				if !ok {
					continue
				}
				value := ""
				switch {
				case cell.Value != nil:
					value = fmt.Sprintf("%g", *cell.Value)
				case cell.ValueText != nil:
					value = *cell.ValueText
				}
				fmt.Fprintf(out, "  %s=%s (%s)", column.Name, value, cell.Status)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

func runRunsIgnore(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return eris.Wrap(err, "invalid run id")
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	return st.SetRunIgnored(cmd.Context(), runID, !runsIgnoreUnset)
}
