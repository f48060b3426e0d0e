package commands

import (
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/hgminh-pk/amfgate/internal/amf"
	"github.com/hgminh-pk/amfgate/internal/remoting"
)

// loginCmd sends a CommandMessage LOGIN with base64 credentials.
func loginCmd() *cobra.Command {
	var userid, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the gateway",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg := clientRegistry()

			msg := &remoting.CommandMessage{
				Operation: remoting.CommandLogin,
			}
			msg.MessageID = "login-1"
			msg.Body = base64.StdEncoding.EncodeToString([]byte(userid + ":" + password))

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

	cmd.Flags().StringVar(&userid, "user", "", "userid")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
