package gwmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	gwmetrics "github.com/hgminh-pk/amfgate/internal/metrics"
)

func TestCollectorRegistersAll(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := gwmetrics.NewCollector(reg)

	c.PacketProcessed(0x03)
	c.PacketProcessed(0x00)
	c.BodyDispatched("result", 0.01)
	c.BodyDispatched("status", 0.02)
	c.DecodeError()
	c.AuthFailure()
	c.ACLDenied()
	c.SetServices(5)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 7 {
		t.Errorf("gathered %d metric families, want 7", len(families))
	}

	if got := testutil.ToFloat64(c.Packets.WithLabelValues("amf3")); got != 1 {
		t.Errorf("amf3 packets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Packets.WithLabelValues("amf0")); got != 1 {
		t.Errorf("amf0 packets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Bodies.WithLabelValues("status")); got != 1 {
		t.Errorf("status bodies = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.DecodeErrors); got != 1 {
		t.Errorf("decode errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Services); got != 5 {
		t.Errorf("services = %v, want 5", got)
	}
}

func TestCollectorNilRegistererUsesDefault(t *testing.T) {
	// Not parallel: touches the default registerer.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("NewCollector(nil) panicked: %v", r)
		}
	}()

	reg := prometheus.NewRegistry()
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = orig }()

	gwmetrics.NewCollector(nil)
}
