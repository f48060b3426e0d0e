package commands

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// servicesCmd lists the registered qualified names via the admin API.
func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List registered gateway services",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			resp, err := http.Get(serverURL + "/v1/services")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %s: %s", resp.Status, body)
			}
			fmt.Print(string(body))
			return nil
		},
	}
}
