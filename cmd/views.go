package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scylladb/argus-sub001/internal/model"
)

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Manage saved graph views",
}

var (
	viewsSaveSubject string
	viewsSaveFile    string
)

var viewsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or update a graph view from a YAML file",
	Long:  "The file holds name, description, an optional view_id (to update in place) and a free-form graphs list that is stored as the view's selection.",
	RunE:  runViewsSave,
}

var viewsListSubject string

var viewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a subject's graph views",
	RunE:  runViewsList,
}

var viewsDeleteSubject string

var viewsDeleteCmd = &cobra.Command{
	Use:   "delete <view-id>",
	Short: "Delete a graph view",
	Args:  cobra.ExactArgs(1),
	RunE:  runViewsDelete,
}

func init() {
	viewsSaveCmd.Flags().StringVar(&viewsSaveSubject, "subject", "", "subject id (required)")
	viewsSaveCmd.Flags().StringVar(&viewsSaveFile, "file", "", "path to the view YAML (required)")
	viewsSaveCmd.MarkFlagRequired("subject")
	viewsSaveCmd.MarkFlagRequired("file")

	viewsListCmd.Flags().StringVar(&viewsListSubject, "subject", "", "subject id (required)")
	viewsListCmd.MarkFlagRequired("subject")

	viewsDeleteCmd.Flags().StringVar(&viewsDeleteSubject, "subject", "", "subject id (required)")
	viewsDeleteCmd.MarkFlagRequired("subject")

	viewsCmd.AddCommand(viewsSaveCmd, viewsListCmd, viewsDeleteCmd)
	rootCmd.AddCommand(viewsCmd)
}

// viewFile is the on-disk YAML shape of a graph view.
type viewFile struct {
	ViewID      string `yaml:"view_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Graphs      []any  `yaml:"graphs"`
}

func runViewsSave(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(viewsSaveSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}

	data, err := os.ReadFile(viewsSaveFile)
	if err != nil {
		return eris.Wrap(err, "read view file")
	}
	var vf viewFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return eris.Wrap(err, "parse view file")
	}
	if vf.Name == "" {
		return eris.New("view name is required")
	}

	view := &model.GraphView{
		SubjectID:   subjectID,
		Name:        vf.Name,
		Description: vf.Description,
	}
	if vf.ViewID != "" {
		if view.ViewID, err = uuid.Parse(vf.ViewID); err != nil {
			return eris.Wrap(err, "invalid view_id")
		}
	}
	if len(vf.Graphs) > 0 {
		if view.Graphs, err = json.Marshal(vf.Graphs); err != nil {
			return eris.Wrap(err, "encode graph selection")
		}
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := svc.SaveView(cmd.Context(), view)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runViewsList(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(viewsListSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	views, err := svc.Views(cmd.Context(), subjectID)
	if err != nil {
		return err
	}
	for _, v := range views {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
			v.ViewID, v.UpdatedAt.Format(time.RFC3339), v.Name)
	}
	return nil
}

func runViewsDelete(cmd *cobra.Command, args []string) error {
	subjectID, err := uuid.Parse(viewsDeleteSubject)
	if err != nil {
		return eris.Wrap(err, "invalid subject id")
	}
	viewID, err := uuid.Parse(args[0])
	if err != nil {
		return eris.Wrap(err, "invalid view id")
	}

	svc, st, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	return svc.DeleteView(cmd.Context(), subjectID, viewID)
}
