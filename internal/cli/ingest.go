package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/docingest/internal/client"
	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/progress"
)

var (
	ingestMeta models.IngestMetadata
	ingestWait bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit a document for ingestion",
	Long: `Submit a document for ingestion. Exactly one of --url or --file-id is
required. Subject, grade, chapter and title default to frontmatter values
or are parsed from filenames such as math-7-3-fractions.pdf.

Examples:
  docingest ingest --file-id uploads/math-7-3-fractions.pdf
  docingest ingest --url https://example.com/notes.html --subject biology --wait`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestMeta.FileURL, "url", "", "HTTP(S) URL of the document")
	f.StringVar(&ingestMeta.FileID, "file-id", "", "object key in the storage bucket")
	f.StringVar(&ingestMeta.FileName, "name", "", "display name of the document")
	f.StringVar(&ingestMeta.Subject, "subject", "", "subject")
	f.StringVar(&ingestMeta.Grade, "grade", "", "grade level")
	f.StringVar(&ingestMeta.Chapter, "chapter", "", "chapter")
	f.StringVar(&ingestMeta.Title, "title", "", "document title")
	f.IntVar(&ingestMeta.Options.MaxChunkSize, "max-chunk-size", 0, "maximum characters per chunk (server default if 0)")
	f.IntVar(&ingestMeta.Options.Overlap, "overlap", 0, "characters shared between split chunks (server default if 0)")
	f.BoolVar(&ingestMeta.Options.SkipChunking, "skip-chunking", false, "store the whole document as one chunk")
	f.BoolVar(&ingestMeta.Options.DeleteOldChunks, "replace", false, "delete chunks previously stored for this document")
	f.BoolVarP(&ingestWait, "wait", "w", false, "follow progress until the job finishes")
	ingestCmd.MarkFlagsMutuallyExclusive("url", "file-id")
	ingestCmd.MarkFlagsOneRequired("url", "file-id")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	job, err := apiClient.CreateJob(cmd.Context(), ingestMeta)
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	out := cmd.OutOrStdout()
	if !ingestWait {
		fmt.Fprintf(out, "Job %s queued (%s)\n", job.JobID, job.Filename)
		fmt.Fprintf(out, "Use 'docingest jobs %s' to check status.\n", job.JobID)
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, job)
	}
	return followJob(cmd, apiClient, job, out)
}

// followJob prints one line per progress event for non-interactive output.
func followJob(cmd *cobra.Command, c *client.Client, job *models.StatusView, out io.Writer) error {
	err := c.Watch(cmd.Context(), job.JobID, func(e progress.Event) error {
		fmt.Fprintf(out, "%s %-11s %3d%% %s\n",
			e.Timestamp.Local().Format("15:04:05"), e.Progress.Step, e.Progress.Percentage, e.Progress.Message)
		return nil
	})
	if err != nil && !errors.Is(err, cmd.Context().Err()) {
		return fmt.Errorf("watch job: %w", err)
	}

	final, err := c.GetJob(cmd.Context(), job.JobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if err := jobError(final); err != nil {
		return err
	}
	printJob(out, final)
	return nil
}
