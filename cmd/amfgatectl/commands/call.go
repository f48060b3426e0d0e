package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// callCmd invokes a remote procedure with an AMF0 body. Arguments are
// JSON literals converted into AMF values.
func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <target> [json-arg...]",
		Short: "Call a gateway procedure (e.g. Diagnostics.Echo '\"hi\"')",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			reg := clientRegistry()

			callArgs := make([]amf.Value, 0, len(args)-1)
			for _, raw := range args[1:] {
				var parsed any
				if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
					return fmt.Errorf("argument %q is not valid JSON: %w", raw, err)
				}
				callArgs = append(callArgs, jsonToValue(parsed))
			}

			pkt := &amf.Packet{
				Version: amf.EncodingAMF0,
				Bodies: []amf.Body{{
					TargetURI:   args[0],
					ResponseURI: "/1",
					Data:        &amf.Array{Dense: callArgs},
				}},
			}

			resp, err := postAMF(pkt, reg)
			if err != nil {
				return err
			}
			printBodies(resp)
			return nil
		},
	}
}
