package commands

import (
	"github.com/spf13/cobra"

	"github.com/hgminh-pk/amfgate/internal/amf"
	"github.com/hgminh-pk/amfgate/internal/remoting"
)

// pingCmd sends a CommandMessage CLIENT_PING and prints the
// acknowledgement.
func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Send a flex CLIENT_PING command to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg := clientRegistry()

			msg := &remoting.CommandMessage{Operation: remoting.CommandClientPing}
			msg.MessageID = "ping-1"

			pkt := &amf.Packet{
				Version: amf.EncodingAMF3,
				Bodies: []amf.Body{{
					TargetURI:   "null",
					ResponseURI: "/1",
					Data:        &amf.Array{Dense: []amf.Value{msg}},
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
