package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or processing job",
	Long: `Cancel a job. A running pipeline stops at its next stage boundary;
chunks are never stored for a cancelled job. Finished jobs are left as they are.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := apiClient.CancelJob(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.JobID, job.Status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
