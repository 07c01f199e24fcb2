package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	sv "katydid-common-validation/pkg/servervalidation"
)

func newFlattenCmd() *cobra.Command {
	var (
		file   string
		parent string
	)

	cmd := &cobra.Command{
		Use:   "flatten",
		Short: "Apply a ModelState payload to a throwaway session and print the records as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return flatten(cmd, data, parent)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "ModelState JSON file")
	cmd.Flags().StringVar(&parent, "parent", "", "parent property path for every key")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func flatten(cmd *cobra.Command, data []byte, parent string) error {
	s := sv.NewSession(sv.WithScheduler(sv.NewManualScheduler()))
	defer s.Dispose()

	if err := s.ApplyModelStateJSON(data, parent); err != nil {
		return fmt.Errorf("apply payload: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, rec := range s.Items() {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}
