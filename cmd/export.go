package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scylladb/argus-sub001/internal/results"
)

var (
	exportSubject string
	exportRunID   string
	exportOutput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's result tables to an xlsx workbook",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSubject, "subject", "", "subject id (required)")
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "run id (required)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "results.xlsx", "output file")
	exportCmd.MarkFlagRequired("subject")
	exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(exportSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}
	runID, err := uuid.Parse(exportRunID)
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
	if len(tables) == 0 {
		return eris.New("run has no results")
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return eris.Wrap(err, "create output file")
	}
	defer f.Close()

	if err := results.ExportXLSX(f, tables); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tables to %s\n", len(tables), exportOutput)
	return nil
}
