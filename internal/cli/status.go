package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tansive/chatbridge/internal/common/httpclient"
	"github.com/tidwall/gjson"
)

var serverURL string

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the status of a session on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := fetchStatus(cmd.Context(), serverURL, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(map[string]string{
					"sessionId": args[0],
					"status":    status,
				})
				return nil
			}
			okLabel.Fprintf(cmd.OutOrStdout(), "%s ", status)
			cmd.Printf("%s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:3001", "chatbridge server URL")
	return cmd
}

func fetchStatus(ctx context.Context, url string, sessionID string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := httpclient.NewClient(httpclient.StaticConfig{ServerURL: url}, httpclient.ClientOptions{Timeout: 10 * time.Second})
	body, _, err := client.DoRequest(ctx, httpclient.RequestOptions{
		Method: http.MethodGet,
		Path:   "/whatsapp-status/" + sessionID,
	})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "status").String(), nil
}
