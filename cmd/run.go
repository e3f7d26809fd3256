package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	runAccount  string
	runRole     string
	runOrg      string
	runLocation string
	runCount    int
	runTier     string
	runTargeted bool
	runID       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the outreach pipeline for one search request",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		id := runID
		if id == "" {
			id = uuid.NewString()
		}

		req := model.SearchRequest{
			ID:           id,
			AccountID:    runAccount,
			Role:         runRole,
			Organization: runOrg,
			Location:     runLocation,
			Count:        runCount,
			Tier:         model.Tier(runTier),
			Targeted:     runTargeted,
		}

		result, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("request_id", req.ID),
			zap.Int("contacts", len(result.Contacts)),
			zap.Int("credits_charged", result.CreditsCharged),
			zap.Int("warnings", len(result.Warnings)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runAccount, "account", "", "account ID to run and charge against (required)")
	runCmd.Flags().StringVar(&runRole, "role", "", "role to search for, e.g. \"vp of sales\" (required)")
	runCmd.Flags().StringVar(&runOrg, "org", "", "restrict to one organization")
	runCmd.Flags().StringVar(&runLocation, "location", "", "restrict to a location")
	runCmd.Flags().IntVar(&runCount, "count", 10, "number of contacts to deliver")
	runCmd.Flags().StringVar(&runTier, "tier", string(model.TierFree), "account tier (free, pro, scale)")
	runCmd.Flags().BoolVar(&runTargeted, "targeted", false, "treat as a targeted request (mentions the sender's background)")
	runCmd.Flags().StringVar(&runID, "request-id", "", "request ID, doubles as the charge idempotency key (default: random)")
	_ = runCmd.MarkFlagRequired("account")
	_ = runCmd.MarkFlagRequired("role")
	rootCmd.AddCommand(runCmd)
}
