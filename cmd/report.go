package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var reportSession string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the stored stage results for a research session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportSession == "" {
			return fmt.Errorf("--session is required")
		}

		components, err := NewComponents(cmd.Context(), loadedConfig)
		if err != nil {
			return err
		}
		defer components.Shutdown()

		if components.Store == nil {
			return fmt.Errorf("no database configured (hint: set ARGONAUT_DATABASE_URL)")
		}

		results, err := components.Store.StageResultsBySession(cmd.Context(), reportSession)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Printf("No stage results found for session %s\n", reportSession)
			return nil
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSession, "session", "", "session id to report on")
}
