package torque

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"rtctl/internal/fields"
	"rtctl/internal/rtorrent"
)

func TestExporterCollect(t *testing.T) {
	backend := &fakeBackend{}
	backend.handler = func(method string, args []any) (any, error) {
		switch method {
		case "throttle.global_up.rate":
			return int64(2048), nil
		case "throttle.global_down.rate":
			return int64(1024), nil
		case "download_list":
			view, _ := args[1].(string)
			if view == "main" {
				return []any{hashA, hashB}, nil
			}
			return []any{hashA}, nil
		case "d.multicall2":
			// d.hash= plus the tracker multicall for the alias field.
			return []any{
				[]any{hashA, []any{[]any{"https://tracker.example.org/announce", int64(1)}}},
				[]any{hashB, []any{[]any{"https://tracker.example.org/announce", int64(1)}}},
			}, nil
		}
		return nil, fmt.Errorf("unexpected method %s", method)
	}

	e := NewExporter(rtorrent.New(backend, nil), fields.NewRegistry(), ":0", nil)
	reg := prometheus.NewRegistry()
	if err := reg.Register(&collector{exporter: e}); err != nil {
		t.Fatal(err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	if up := gaugeValue(t, byName, "rtctl_up", nil); up != 1 {
		t.Errorf("rtctl_up = %v", up)
	}
	if v := gaugeValue(t, byName, "rtctl_global_upload_bytes_per_second", nil); v != 2048 {
		t.Errorf("upload rate = %v", v)
	}
	if v := gaugeValue(t, byName, "rtctl_view_items", map[string]string{"view": "main"}); v != 2 {
		t.Errorf("main view items = %v", v)
	}
	if v := gaugeValue(t, byName, "rtctl_view_items", map[string]string{"view": "leeching"}); v != 1 {
		t.Errorf("leeching view items = %v", v)
	}
	if v := gaugeValue(t, byName, "rtctl_tracker_items", map[string]string{"tracker": "example.org"}); v != 2 {
		t.Errorf("tracker items = %v", v)
	}
}

func TestExporterCollectBackendDown(t *testing.T) {
	backend := &fakeBackend{}
	backend.handler = func(method string, args []any) (any, error) {
		return nil, fmt.Errorf("connection refused")
	}

	e := NewExporter(rtorrent.New(backend, nil), fields.NewRegistry(), ":0", nil)
	reg := prometheus.NewRegistry()
	if err := reg.Register(&collector{exporter: e}); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]*dto.MetricFamily)
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	if up := gaugeValue(t, byName, "rtctl_up", nil); up != 0 {
		t.Errorf("rtctl_up = %v, want 0", up)
	}
	if _, ok := byName["rtctl_view_items"]; ok {
		t.Error("view metrics reported for an unreachable backend")
	}
}

func gaugeValue(t *testing.T, byName map[string]*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	mf, ok := byName[name]
	if !ok {
		t.Fatalf("metric %s not gathered", name)
	}
outer:
	for _, m := range mf.GetMetric() {
		for k, want := range labels {
			found := false
			for _, lp := range m.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == want {
					found = true
					break
				}
			}
			if !found {
				continue outer
			}
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}
