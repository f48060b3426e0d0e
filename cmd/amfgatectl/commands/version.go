package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/hgminh-pk/amfgate/internal/version"
)

// versionCmd prints the build version information.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print amfgatectl version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("amfgatectl"))
		},
	}
}
