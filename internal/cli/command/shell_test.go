package command

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/sidus-go/internal/cli/connection"
)

func TestShell_RunsCommands(t *testing.T) {
	dev := newMockDevice(t)
	dev.reply("echo", map[string]string{"said": "hi"})
	home := t.TempDir()

	input := strings.Join([]string{
		"call echo",
		"profile add lab --url ws://10.0.0.7:12345",
		"profile list",
		"shell",
		"exit",
	}, "\n") + "\n"

	res := runCLIWithInput(t, home, input, deviceArgs(dev, "shell")...)
	if res.err != nil {
		t.Fatalf("shell: %v", res.err)
	}

	// Global flags given to shell apply to every line.
	if !strings.Contains(res.stdout, `"said": "hi"`) {
		t.Errorf("call output missing: %s", res.stdout)
	}
	if !strings.Contains(res.stdout, `"name": "lab"`) {
		t.Errorf("profile list output missing: %s", res.stdout)
	}
	if !strings.Contains(res.stdout, `"url": "ws://10.0.0.7:12345"`) {
		t.Errorf("--url after the profile name was dropped: %s", res.stdout)
	}
	if !strings.Contains(res.stdout, "Error: already in a shell") {
		t.Errorf("nested shell should be refused: %s", res.stdout)
	}

	// Profiles land in the shell's home, not the default one.
	if _, err := os.Stat(filepath.Join(home, "cli.yaml")); err != nil {
		t.Errorf("profile store not in --home: %v", err)
	}

	history, err := os.ReadFile(filepath.Join(home, "history"))
	if err != nil {
		t.Fatalf("history not saved: %v", err)
	}
	if !strings.Contains(string(history), "call echo") {
		t.Errorf("history = %q", history)
	}
}

func TestShell_ErrorsDoNotEndSession(t *testing.T) {
	input := "call\nversion\n"

	res := runCLIWithInput(t, t.TempDir(), input, "shell")
	if res.err != nil {
		t.Fatalf("shell: %v", res.err)
	}
	if !strings.Contains(res.stdout, "Error:") {
		t.Errorf("error not reported: %s", res.stdout)
	}
	if !strings.Contains(res.stdout, "dev") {
		t.Errorf("command after the error did not run: %s", res.stdout)
	}
}

func TestCommandNames(t *testing.T) {
	names := commandNames(NewApp(NewRuntime()).Commands)

	want := map[string]bool{"call": false, "profile add": false, "token derive": false, "config init": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("missing %q in %v", n, names)
		}
	}
}

func TestShellPrompt(t *testing.T) {
	if got := shellPrompt(connection.Profile{}); got != "sidus> " {
		t.Errorf("shellPrompt(no profile) = %q", got)
	}
	if got := shellPrompt(connection.Profile{Name: "studio"}); got != "sidus:studio> " {
		t.Errorf("shellPrompt(studio) = %q", got)
	}
}
