package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/hgminh-pk/amfgate/internal/amf"
	"github.com/hgminh-pk/amfgate/internal/remoting"
)

var (
	// serverURL is the daemon base URL for all commands.
	serverURL string

	// gatewayPath is the AMF endpoint path on the daemon.
	gatewayPath string
)

// rootCmd is the top-level cobra command for amfgatectl.
var rootCmd = &cobra.Command{
	Use:   "amfgatectl",
	Short: "CLI client for the amfgate daemon",
	Long:  "amfgatectl speaks AMF over HTTP to a running amfgate daemon.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "http://localhost:8080",
		"amfgate daemon base URL")
	rootCmd.PersistentFlags().StringVar(&gatewayPath, "path", "/gateway",
		"AMF gateway endpoint path")

	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(callCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// clientRegistry builds the registry every command encodes and decodes
// with; it carries the flex messaging classes.
func clientRegistry() *amf.TypeRegistry {
	reg := amf.NewTypeRegistry()
	remoting.RegisterMessages(reg)
	return reg
}

// postAMF sends one request envelope and decodes the response envelope.
func postAMF(pkt *amf.Packet, reg *amf.TypeRegistry) (*amf.Packet, error) {
	request, err := amf.WritePacket(pkt, reg)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := http.Post(serverURL+gatewayPath, "application/x-amf", bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	out, err := amf.ReadPacket(raw, reg)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// printBodies renders response bodies as JSON-ish output.
func printBodies(pkt *amf.Packet) {
	for _, b := range pkt.Bodies {
		fmt.Printf("%s\n", b.TargetURI)
		out, err := json.MarshalIndent(renderValue(b.Data), "  ", "  ")
		if err != nil {
			fmt.Printf("  %#v\n", b.Data)
			continue
		}
		fmt.Printf("  %s\n", out)
	}
}

// renderValue converts decoded AMF values into JSON-friendly shapes.
func renderValue(v amf.Value) any {
	switch val := v.(type) {
	case *amf.Object:
		m := map[string]any{}
		if val.Trait.Alias != "" {
			m["_class"] = val.Trait.Alias
		}
		for i, n := range val.Trait.SealedNames {
			if i < len(val.Sealed) {
				m[n] = renderValue(val.Sealed[i])
			}
		}
		for _, n := range val.Dynamic.Names() {
			f, _ := val.Dynamic.Get(n)
			m[n] = renderValue(f)
		}
		return m
	case *amf.Array:
		if val.Assoc.Len() == 0 {
			out := make([]any, len(val.Dense))
			for i, e := range val.Dense {
				out[i] = renderValue(e)
			}
			return out
		}
		m := map[string]any{}
		for i, e := range val.Dense {
			m[fmt.Sprint(i)] = renderValue(e)
		}
		for _, n := range val.Assoc.Names() {
			f, _ := val.Assoc.Get(n)
			m[n] = renderValue(f)
		}
		return m
	case *remoting.AcknowledgeMessage:
		return map[string]any{
			"_class":        "AcknowledgeMessage",
			"correlationId": val.CorrelationID,
			"body":          renderValue(val.Body),
		}
	case *remoting.ErrorMessage:
		return map[string]any{
			"_class":      "ErrorMessage",
			"faultCode":   val.FaultCode,
			"faultString": val.FaultString,
			"faultDetail": val.FaultDetail,
		}
	case amf.Undefined:
		return "<undefined>"
	case amf.ByteArray:
		return fmt.Sprintf("<%d bytes>", len(val))
	default:
		return v
	}
}

// jsonToValue converts a parsed JSON argument into an AMF value.
func jsonToValue(v any) amf.Value {
	switch val := v.(type) {
	case map[string]any:
		obj := amf.NewObject()
		for k, e := range val {
			obj.Dynamic.Set(k, jsonToValue(e))
		}
		return obj
	case []any:
		arr := amf.NewArray()
		for _, e := range val {
			arr.Dense = append(arr.Dense, jsonToValue(e))
		}
		return arr
	default:
		return v
	}
}
