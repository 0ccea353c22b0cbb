package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if the Vitrine server is running",
		Long:  "Report the server process state and the results of its liveness and readiness probes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
}

func runStatus(out io.Writer) error {
	pid, err := readPID()
	if err != nil {
		fmt.Fprintln(out, "Server is not running (no PID file found).")
		return nil
	}

	if !isProcessRunning(pid) {
		removePID()
		fmt.Fprintln(out, "Server is not running (stale PID file removed).")
		return nil
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	host := settings.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	base := fmt.Sprintf("http://%s:%d", host, settings.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	fmt.Fprintf(out, "Server is running (PID %d)\n", pid)
	for _, probe := range []string{"/healthz", "/readyz"} {
		resp, err := client.Get(base + probe)
		if err != nil {
			fmt.Fprintf(out, "  %-9s not responding (%v)\n", probe, err)
			continue
		}
		resp.Body.Close()
		fmt.Fprintf(out, "  %-9s %d\n", probe, resp.StatusCode)
	}
	fmt.Fprintf(out, "  Logs:     %s\n", logFilePath())
	return nil
}
