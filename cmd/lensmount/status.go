package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/lensmount/internal/store"
	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

// jobStatus mirrors the job fields returned by the server.
type jobStatus struct {
	ID                    string            `json:"id"`
	State                 string            `json:"state"`
	Config                store.RunConfig   `json:"config"`
	Total                 int               `json:"total"`
	Evaluated             int               `json:"evaluated"`
	BestIndex             int               `json:"bestIndex"`
	BestScore             float64           `json:"bestScore"`
	FinalScore            float64           `json:"finalScore"`
	Best                  []store.Selection `json:"best"`
	Elapsed               float64           `json:"elapsed"`
	CombinationsPerSecond float64           `json:"combinationsPerSecond"`
	Error                 string            `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func fetchJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listJobs(url string) error {
	var jobs []jobStatus
	if _, err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job.ID)
		fmt.Printf("  State: %s\n", job.State)
		fmt.Printf("  Config: %s\n", job.Config.ConfigPath)
		fmt.Printf("  Progress: %d/%d\n", job.Evaluated, job.Total)
		if job.BestIndex >= 0 {
			fmt.Printf("  Best: #%d (%.6g)\n", job.BestIndex, job.BestScore)
		}
		fmt.Println()
	}
	return nil
}

func getJobStatus(url, jobID string) error {
	var status jobStatus
	code, err := fetchJSON(url, &status)
	if code == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.ID)
	fmt.Printf("State: %s\n", status.State)
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Lenses: %s\n", status.Config.ConfigPath)
	fmt.Printf("  Axis: %s\n", status.Config.AxisType)
	fmt.Printf("  Merit: %s\n", status.Config.Merit)
	fmt.Printf("  Cycles: %d\n", status.Config.Cycles)
	fmt.Printf("  Variable air gaps: %t\n", status.Config.VariableAirGaps)
	fmt.Println()

	fmt.Println("Progress:")
	fmt.Printf("  Evaluated: %d/%d\n", status.Evaluated, status.Total)
	if status.BestIndex >= 0 {
		fmt.Printf("  Best index: %d\n", status.BestIndex)
		fmt.Printf("  Best score: %.6g\n", status.BestScore)
	}
	for _, s := range status.Best {
		fmt.Printf("  %s -> position %d\n", s.Label, s.Position)
	}
	if status.State == "completed" {
		fmt.Printf("  Final score: %.6g\n", status.FinalScore)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.CombinationsPerSecond > 0 {
		fmt.Printf("  Throughput: %.1f combinations/sec\n", status.CombinationsPerSecond)
	}

	if status.Error != "" {
		fmt.Printf("\nError: %s\n", status.Error)
	}
	return nil
}
