package command

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/sidus-go/internal/cli/config"
)

func TestProfile_Lifecycle(t *testing.T) {
	home := t.TempDir()

	steps := [][]string{
		{"profile", "add", "studio", "--url", "ws://10.0.0.5:12345", "--key", testKey, "--node-id", "2"},
		{"profile", "add", "stage", "--url", "wss://stage.local:12345", "--generate-key"},
	}
	for _, args := range steps {
		if res := runCLI(t, home, args...); res.err != nil {
			t.Fatalf("%v: %v", args, res.err)
		}
	}

	res := runCLI(t, home, "-o", "json", "profile", "list")
	if res.err != nil {
		t.Fatalf("profile list: %v", res.err)
	}
	if strings.Contains(res.stdout, testKey) {
		t.Error("profile list must not print secret keys")
	}
	var rows []profileRow
	if err := json.Unmarshal([]byte(res.stdout), &rows); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, res.stdout)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d profiles, want 2", len(rows))
	}
	current := map[string]bool{}
	for _, r := range rows {
		current[r.Name] = r.Active
		if r.Fingerprint == "" {
			t.Errorf("%s has no key fingerprint", r.Name)
		}
	}
	if !current["studio"] || current["stage"] {
		t.Errorf("current = %v, want studio (first added)", current)
	}

	if res := runCLI(t, home, "profile", "use", "stage"); res.err != nil {
		t.Fatalf("profile use: %v", res.err)
	}
	if res := runCLI(t, home, "profile", "remove", "stage"); res.err != nil {
		t.Fatalf("profile remove: %v", res.err)
	}
	res = runCLI(t, home, "profile", "use", "stage")
	if !errors.Is(res.err, config.ErrProfileNotFound) {
		t.Errorf("use removed profile: err = %v, want ErrProfileNotFound", res.err)
	}
}

func TestProfile_FlagsAfterName(t *testing.T) {
	home := t.TempDir()

	res := runCLI(t, home, "profile", "add", "studio", "--url", "ws://10.0.0.5:12345", "--key", testKey, "--use")
	if res.err != nil {
		t.Fatalf("profile add: %v", res.err)
	}

	res = runCLI(t, home, "-o", "json", "profile", "list")
	if res.err != nil {
		t.Fatalf("profile list: %v", res.err)
	}
	var rows []profileRow
	if err := json.Unmarshal([]byte(res.stdout), &rows); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, res.stdout)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d profiles, want 1", len(rows))
	}
	if rows[0].URL != "ws://10.0.0.5:12345" {
		t.Errorf("url = %q, want ws://10.0.0.5:12345", rows[0].URL)
	}
	if rows[0].Fingerprint == "" {
		t.Error("key given after NAME was not saved")
	}
	if !rows[0].Active {
		t.Error("--use given after NAME was ignored")
	}
}

func TestProfile_GenerateKeyPrintsOnce(t *testing.T) {
	home := t.TempDir()

	res := runCLI(t, home, "profile", "add", "lab", "--url", "ws://10.0.0.7:12345", "--generate-key")
	if res.err != nil {
		t.Fatalf("profile add: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Secret key") {
		t.Errorf("stdout = %q, want the generated key", res.stdout)
	}
}

func TestProfile_AddErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"profile", "add"}},
		{"bad name", []string{"profile", "add", "a b", "--url", "ws://10.0.0.5:12345"}},
		{"bad url", []string{"profile", "add", "x", "--url", "http://10.0.0.5"}},
		{"bad key", []string{"profile", "add", "x", "--key", "c2hvcnQ="}},
		{"key and generate", []string{"profile", "add", "x", "--key", testKey, "--generate-key"}},
		{"flags after name validated", []string{"profile", "add", "studio", "--url", "notaurl", "--key", "short"}},
		{"extra argument", []string{"profile", "add", "x", "y", "--url", "ws://10.0.0.5:12345"}},
		{"use extra argument", []string{"profile", "use", "x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := runCLI(t, t.TempDir(), tt.args...); res.err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProfile_SelectsDevice(t *testing.T) {
	dev := newMockDevice(t)
	dev.reply("ping", map[string]string{"pong": "ok"})
	home := t.TempDir()

	if res := runCLI(t, home, "profile", "add", "mock", "--url", dev.URL(), "--key", testKey, "--node-id", "9"); res.err != nil {
		t.Fatalf("profile add: %v", res.err)
	}
	if res := runCLI(t, home, "profile", "add", "other", "--url", "ws://127.0.0.1:1", "--key", testKey); res.err != nil {
		t.Fatalf("profile add: %v", res.err)
	}

	res := runCLI(t, home, "-o", "json", "call", "ping")
	if res.err != nil {
		t.Fatalf("call with current profile: %v", res.err)
	}
	if reqs := dev.received(); len(reqs) != 1 || reqs[0].NodeID != "9" {
		t.Errorf("requests = %+v, want one with node_id 9", reqs)
	}

	res = runCLI(t, home, "-p", "other", "call", "ping")
	if ExitCode(res.err) != ExitConnection {
		t.Errorf("--profile other: err = %v, want connection error", res.err)
	}

	res = runCLI(t, home, "-p", "missing", "call", "ping")
	if ExitCode(res.err) != ExitConfig {
		t.Errorf("--profile missing: err = %v, want configuration error", res.err)
	}
}
