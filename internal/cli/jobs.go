package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/docingest/internal/models"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect ingestion jobs",
	Long: `List recent ingestion jobs or inspect a specific job by ID.

Examples:
  docingest jobs                    # List the 20 most recent jobs
  docingest jobs --status failed    # List failed jobs
  docingest jobs 5f0c...            # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, processing, completed, failed, cancelled)")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 1 {
		job, err := apiClient.GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		printJob(cmd.OutOrStdout(), job)
		return nil
	}

	jobs, err := apiClient.ListJobs(ctx, jobsStatus, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	printJobList(cmd.OutOrStdout(), jobs)
	return nil
}

func printJobList(w io.Writer, jobs []models.StatusView) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return
	}

	fmt.Fprintf(w, "%-36s  %-10s  %-9s  %-19s  %s\n", "ID", "STATUS", "PROGRESS", "CREATED", "FILE")
	fmt.Fprintln(w, "--------------------------------------------------------------------------------------------------")
	for _, job := range jobs {
		fmt.Fprintf(w, "%-36s  %-10s  %8d%%  %-19s  %s\n",
			job.JobID, job.Status, job.Progress, job.CreatedAt.Local().Format("2006-01-02 15:04:05"), job.Filename)
	}
}

func printJob(w io.Writer, job *models.StatusView) {
	fmt.Fprintf(w, "Job: %s\n", job.JobID)
	fmt.Fprintf(w, "  File: %s\n", job.Filename)
	fmt.Fprintf(w, "  Status: %s\n", job.Status)
	if job.Step != "" {
		fmt.Fprintf(w, "  Step: %s (%d%%)\n", job.Step, job.Progress)
	}
	if job.Message != "" {
		fmt.Fprintf(w, "  Message: %s\n", job.Message)
	}
	fmt.Fprintf(w, "  Created: %s\n", job.CreatedAt.Format(time.RFC3339))

	if meta := job.Metadata.IngestPDF; meta != nil {
		for _, f := range [][2]string{
			{"Subject", meta.Subject},
			{"Grade", meta.Grade},
			{"Chapter", meta.Chapter},
			{"Title", meta.Title},
		} {
			if f[1] != "" {
				fmt.Fprintf(w, "  %s: %s\n", f[0], f[1])
			}
		}
	}

	if job.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", job.Error)
	}

	if r := job.Result; r != nil {
		fmt.Fprintln(w, "\nResult:")
		fmt.Fprintf(w, "  Chunks processed:  %d\n", r.ChunksProcessed)
		fmt.Fprintf(w, "  Embeddings:        %d\n", r.EmbeddingCount)
		if r.FailedEmbeddings > 0 {
			fmt.Fprintf(w, "  Failed embeddings: %d\n", r.FailedEmbeddings)
		}
		fmt.Fprintf(w, "  Stored:            %d\n", r.Stored)
	}
}
