package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/observability"
)

var (
	throughStage int
	sessionID    string
)

var researchCmd = &cobra.Command{
	Use:   "research <query>",
	Short: "Run the nine-stage reasoning pipeline on a research question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		logger := observability.GetLogger()

		components, err := NewComponents(cmd.Context(), loadedConfig)
		if err != nil {
			return err
		}
		defer components.Shutdown()

		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		last := throughStage
		if last < schemas.MinStage || last > schemas.MaxStage {
			last = schemas.MaxStage
		}
		for stage := schemas.MinStage; stage <= last; stage++ {
			result, err := components.Engine.ExecuteStage(cmd.Context(), stage, query)
			if err != nil {
				return fmt.Errorf("stage %d failed: %w", stage, err)
			}
			fmt.Printf("== Stage %d: %s (%s, %dms)\n%s\n\n",
				result.Stage, result.Name, result.Status, result.Metadata.DurationMS, result.Content)
		}

		if components.Store != nil {
			err := components.Store.SaveSnapshot(cmd.Context(), sessionID,
				components.Engine.GetGraphData(),
				components.Engine.GetResearchContext(),
				components.Engine.GetStageContexts())
			if err != nil {
				logger.Warn("Failed to persist snapshot", zap.Error(err))
			} else {
				fmt.Printf("Snapshot saved under session %s\n", sessionID)
			}
		}

		usage := components.Guardrail.Usage()
		fmt.Printf("Usage: $%.4f total", usage.TotalCostUSD)
		for name, svc := range usage.Services {
			fmt.Printf(", %s %d calls/%d tokens", name, svc.Calls, svc.Tokens)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	researchCmd.Flags().IntVar(&throughStage, "through", schemas.MaxStage, "run stages 1 through N")
	researchCmd.Flags().StringVar(&sessionID, "session", "", "session id for snapshot persistence (default: random)")
}
