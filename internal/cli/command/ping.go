package command

import (
	"encoding/json"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/core/service"
)

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:   "ping",
		Usage:  "Check the device by asking for its protocol versions",
		Action: pingAction,
	}
}

type pingResult struct {
	Profile  string        `json:"profile" yaml:"profile"`
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	State    service.State `json:"state" yaml:"state"`
	Message  string        `json:"message" yaml:"message"`
	Latency  string        `json:"latency" yaml:"latency"`
	Versions any           `json:"protocol_versions,omitempty" yaml:"protocol_versions,omitempty"`
}

func pingAction(c *cli.Context) error {
	rt := GetRuntime(c)
	d, err := rt.Dispatcher()
	if err != nil {
		return err
	}

	profile := rt.Manager.Current()
	tracker := service.NewStatusTracker()

	start := time.Now()
	versions, err := d.ProtocolVersions(c.Context)
	latency := time.Since(start)
	if err != nil {
		tracker.RecordFailure(err)
	} else {
		tracker.RecordSuccess(versions)
	}

	status := tracker.Snapshot()
	result := pingResult{
		Profile:  profile.Name,
		Endpoint: profile.Endpoint(),
		State:    status.State,
		Message:  status.Message,
		Latency:  latency.Round(time.Millisecond).String(),
	}
	if len(versions) > 0 {
		_ = json.Unmarshal(versions, &result.Versions)
	}
	if perr := rt.Print(c, result); perr != nil {
		return perr
	}
	return err
}
