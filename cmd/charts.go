package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scylladb/argus-sub001/internal/results"
)

var (
	chartsSubject string
	chartsStart   string
	chartsEnd     string
	chartsOutput  string
)

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Assemble a subject's charts as JSON",
	RunE:  runCharts,
}

func init() {
	chartsCmd.Flags().StringVar(&chartsSubject, "subject", "", "subject id (required)")
	chartsCmd.Flags().StringVar(&chartsStart, "start", "", "window start, YYYY-MM-DD")
	chartsCmd.Flags().StringVar(&chartsEnd, "end", "", "window end, YYYY-MM-DD")
	chartsCmd.Flags().StringVarP(&chartsOutput, "output", "o", "", "write JSON to file instead of stdout")
	chartsCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(chartsCmd)
}

func runCharts(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(chartsSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}

	var q results.ChartQuery
	if q.StartDate, err = parseDateFlag(chartsStart, "--start"); err != nil {
		return err
	}
	if q.EndDate, err = parseDateFlag(chartsEnd, "--end"); err != nil {
		return err
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	charts, err := svc.Charts(cmd.Context(), subjectID, q)
	if err != nil {
		return err
	}

	out := map[string]any{
		"graphs": charts,
		"ticks":  results.CalculateTicks(charts),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode charts")
	}

	if chartsOutput != "" {
		return eris.Wrap(os.WriteFile(chartsOutput, data, 0644), "write output file")
	}
	cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func parseDateFlag(raw, flag string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", flag)
	}
	return &t, nil
}
