package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/results"
)

var (
	submitRunID string
	submitFile  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a results payload file for a run",
	Long:  "Reads a JSON results payload (table definition plus cells) and feeds it through ingestion: schema merge, rule evaluation, best tracking.",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitRunID, "run", "", "run id (required)")
	submitCmd.Flags().StringVar(&submitFile, "file", "", "path to the JSON payload (required)")
	submitCmd.MarkFlagRequired("run")
	submitCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(submitRunID)
	if err != nil {
		return eris.Wrap(err, "invalid run id")
	}

	data, err := os.ReadFile(submitFile)
	if err != nil {
		return eris.Wrap(err, "read payload file")
	}
	var payload model.ResultsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return eris.Wrap(err, "parse payload")
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	err = svc.Submit(cmd.Context(), runID, payload)
	if eris.Is(err, results.ErrValidation) {
		// Everything is persisted; the non-zero exit marks the run failing.
		fmt.Fprintf(cmd.OutOrStdout(), "validation failed: %v\n", err)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "submitted table %q for run %s\n", payload.Meta.Name, runID)
	return nil
}
