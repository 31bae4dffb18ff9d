package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"orb/config"
	"orb/logger"
	"orb/market"
	"orb/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or control the shared trading state",
	Long: `Print the persisted trading state as JSON, or flip the kill switch.

--stop halts all trading with the given reason; --resume re-enables it.
Both changes persist across restarts and are observed by any session
started afterwards.

Example:
  orb state -f orb.yaml
  orb state -f orb.yaml --stop "manual halt"
  orb state -f orb.yaml --resume operator`,
	RunE: runState,
}

var (
	stopReason string
	resumeBy   string
)

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().StringVar(&stopReason, "stop", "", "halt trading with this reason")
	stateCmd.Flags().StringVar(&resumeBy, "resume", "", "re-enable trading, authorized by this operator")
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store := state.New(market.RealClock{}, logger.Discard(), cfg.State.Path)

	switch {
	case stopReason != "" && resumeBy != "":
		return fmt.Errorf("--stop and --resume are mutually exclusive")
	case stopReason != "":
		store.EmergencyStop(stopReason)
		fmt.Printf("trading halted: %s\n", stopReason)
	case resumeBy != "":
		store.ResumeTrading(resumeBy)
		fmt.Println("trading resumed")
	}

	snap := store.Snapshot()
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
