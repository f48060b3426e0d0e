package server_test

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgminh-pk/amfgate/internal/amf"
	"github.com/hgminh-pk/amfgate/internal/remoting"
	"github.com/hgminh-pk/amfgate/internal/server"
)

// echoService backs the HTTP round-trip tests.
type echoService struct{}

func (echoService) Echo(v any) any { return v }

func newTestServer(t *testing.T) (*httptest.Server, *remoting.Gateway) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := remoting.New(logger)
	require.NoError(t, gw.RegisterService(&echoService{}, "Echo"))

	ts := httptest.NewServer(server.New(gw, "/gateway", logger))
	t.Cleanup(ts.Close)
	return ts, gw
}

func TestGatewayEndpoint(t *testing.T) {
	t.Parallel()

	ts, gw := newTestServer(t)

	pkt := &amf.Packet{
		Version: amf.EncodingAMF0,
		Bodies: []amf.Body{{
			TargetURI:   "Echo.Echo",
			ResponseURI: "/1",
			Data:        amf.NewArray("ping"),
		}},
	}
	request, err := amf.WritePacket(pkt, gw.Registry())
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/gateway", "application/x-amf", bytes.NewReader(request))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-amf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out, err := amf.ReadPacket(raw, gw.Registry())
	require.NoError(t, err)

	require.Len(t, out.Bodies, 1)
	assert.Equal(t, "/1/onResult", out.Bodies[0].TargetURI)
	assert.Equal(t, "ping", out.Bodies[0].Data)
}

func TestGatewayRejectsWrongContentType(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/gateway", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestGatewayRejectsMalformedEnvelope(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/gateway", "application/x-amf",
		bytes.NewReader([]byte{0x00, 0x09, 0xAA}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServicesListing(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/services")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Echo.Echo")
}
