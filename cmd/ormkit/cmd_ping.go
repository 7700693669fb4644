package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

// pingCmd checks the database connection.
func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity and print pool statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			status := db.Health(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(status); err != nil {
				return err
			}
			if !status.Healthy {
				return errors.New(status.Error)
			}
			return nil
		},
	}
}
