package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/telnet2/ragdocs-gateway/pkg/types"
)

var (
	statusURL  string
	statusWait time.Duration
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running gateway",
	Long: `Query GET /status on a running gateway and print the active session
count, uptime and memory use.

With --wait the command retries with exponential backoff until the gateway
answers or the wait time runs out, which is useful in startup scripts.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", "http://127.0.0.1:3031", "Gateway base URL")
	statusCmd.Flags().DurationVar(&statusWait, "wait", 0, "Keep retrying for up to this long")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw JSON response")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	status, err := fetchStatus(ctx, statusURL, statusWait)
	if err != nil {
		return err
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatus(statusURL, status)
	return nil
}

// fetchStatus queries baseURL/status, retrying for up to wait.
func fetchStatus(ctx context.Context, baseURL string, wait time.Duration) (*types.StatusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	var status types.StatusResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/status", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("gateway returned %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return backoff.Permanent(fmt.Errorf("decode status: %w", err))
		}
		return nil
	}

	if wait <= 0 {
		if err := op(); err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				return nil, perm.Err
			}
			return nil, err
		}
		return &status, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = wait
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return &status, nil
}

func printStatus(baseURL string, s *types.StatusResponse) {
	label := color.New(color.FgHiBlack)
	state := color.New(color.FgGreen, color.Bold)
	if s.Status != "ok" {
		state = color.New(color.FgRed, color.Bold)
	}

	fmt.Printf("%s %s\n", label.Sprint("gateway "), baseURL)
	fmt.Printf("%s %s\n", label.Sprint("status  "), state.Sprint(s.Status))
	fmt.Printf("%s %d\n", label.Sprint("sessions"), s.ActiveSessions)
	fmt.Printf("%s %s\n", label.Sprint("uptime  "), (time.Duration(s.Uptime * float64(time.Second))).Round(time.Second))
	fmt.Printf("%s rss %s, heap %s / %s\n", label.Sprint("memory  "),
		formatBytes(s.Memory.RSS), formatBytes(s.Memory.HeapUsed), formatBytes(s.Memory.HeapTotal))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
