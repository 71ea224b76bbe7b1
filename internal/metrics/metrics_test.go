package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBuild(time.Second, io.EOF)
	m.SetDrives(3)
	m.IncEvent("added")
	m.ObserveOperation("mount", nil)
}

func TestBuildFailureReasons(t *testing.T) {
	g := NewWithT(t)
	m := New()

	m.ObserveBuild(time.Millisecond, nil)
	m.ObserveBuild(time.Millisecond, &devsvc.ConnectionError{Err: io.EOF})
	m.ObserveBuild(time.Millisecond, devsvc.ErrNotConnected)
	m.ObserveBuild(time.Millisecond, context.Canceled)
	m.ObserveBuild(time.Millisecond, io.ErrUnexpectedEOF)

	g.Expect(testutil.ToFloat64(m.buildFailures.WithLabelValues("connection"))).To(Equal(1.0))
	g.Expect(testutil.ToFloat64(m.buildFailures.WithLabelValues("not_connected"))).To(Equal(1.0))
	g.Expect(testutil.ToFloat64(m.buildFailures.WithLabelValues("canceled"))).To(Equal(1.0))
	g.Expect(testutil.ToFloat64(m.buildFailures.WithLabelValues("other"))).To(Equal(1.0))
}

func TestHandlerExposesCollectors(t *testing.T) {
	g := NewWithT(t)
	m := New()
	m.SetDrives(2)
	m.IncEvent("removed")
	m.ObserveOperation("unmount", io.EOF)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	g.Expect(body).To(ContainSubstring("picodisks_drives 2"))
	g.Expect(body).To(ContainSubstring(`picodisks_device_events_total{kind="removed"} 1`))
	g.Expect(body).To(ContainSubstring(`picodisks_device_operations_total{op="unmount",result="error"} 1`))
	g.Expect(body).To(ContainSubstring(`picodisks_build_info{version="dev"} 1`))
}
