package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/sidus-go/internal/core/service"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
)

func TestMonitorHandler(t *testing.T) {
	reg := metric.NewRegistry()
	tracker := service.NewStatusTracker()
	reg.MustRegister(metric.NewCollector(tracker))
	srv := httptest.NewServer(monitorHandler(reg, tracker))
	defer srv.Close()

	getStatus := func() (int, service.Status) {
		t.Helper()
		resp, err := http.Get(srv.URL + "/status")
		if err != nil {
			t.Fatalf("GET /status: %v", err)
		}
		defer resp.Body.Close()
		var st service.Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return resp.StatusCode, st
	}

	if code, st := getStatus(); code != http.StatusServiceUnavailable || st.State != service.StateDisconnected {
		t.Errorf("before probe: %d %s, want 503 disconnected", code, st.State)
	}

	tracker.RecordSuccess(json.RawMessage(`[1,2]`))
	if code, st := getStatus(); code != http.StatusOK || st.State != service.StateOK {
		t.Errorf("after success: %d %s, want 200 ok", code, st.State)
	}

	tracker.RecordFailure(errors.New("refused"))
	if code, st := getStatus(); code != http.StatusServiceUnavailable || st.Message != "refused" {
		t.Errorf("after failure: %d %q", code, st.Message)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), "sidus_") {
		t.Errorf("metrics output has no sidus_ series:\n%s", body.String())
	}
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	dev := newMockDevice(t)
	dev.reply("get_protocol_versions", []int{2})

	var stdout, stderr bytes.Buffer
	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.RunContext(ctx, []string{"sidusctl", "--home", t.TempDir(),
			"--url", dev.URL(), "--secret-key", testKey,
			"monitor", "--addr", "127.0.0.1:0", "--interval", "50ms"})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(dev.received()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if len(dev.received()) == 0 {
		t.Fatal("monitor never probed the device")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("monitor returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}
