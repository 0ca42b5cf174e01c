package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// OutputEnv forces JSON output for every command when set to "json"
const OutputEnv = "SEMSTORE_OUTPUT"

// ShouldOutputJSON determines if a command should output JSON based on flags and the environment
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return machineOutput()
	}

	// Check if --json flag was explicitly set
	if cmd.Flags().Changed("json") {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	// Check global --json flag
	if globalFlag, _ := cmd.Root().PersistentFlags().GetBool("json"); globalFlag {
		return true
	}

	return machineOutput()
}

func machineOutput() bool {
	return os.Getenv(OutputEnv) == "json"
}

// OutputJSON marshals and prints JSON using display.MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
