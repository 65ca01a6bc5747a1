// Package hooks wires conference and participant lifecycle events to
// externally configured shell commands.
package hooks

import (
	"github.com/riftward/sfucore/internal/externalcmd"
	"github.com/riftward/sfucore/internal/logger"
)

// OnConferenceCreateParams are the parameters of OnConferenceCreate.
type OnConferenceCreateParams struct {
	Logger                logger.Writer
	ExternalCmdPool       *externalcmd.Pool
	RunOnConferenceCreate string
	RunOnConferenceCreateRestart bool
	RunOnConferenceEmpty  string
	ConferenceID          string
}

// OnConferenceCreate runs the runOnConferenceCreate hook, if configured, and
// returns a cleanup function that runs runOnConferenceEmpty when the
// conference is torn down.
func OnConferenceCreate(params OnConferenceCreateParams) func() {
	env := externalcmd.Environment{
		"CONFERENCE_ID": params.ConferenceID,
	}

	var cmd *externalcmd.Cmd
	if params.RunOnConferenceCreate != "" {
		params.Logger.Log(logger.Info, "runOnConferenceCreate command started")

		cmd = externalcmd.NewCmd(
			params.ExternalCmdPool,
			params.RunOnConferenceCreate,
			params.RunOnConferenceCreateRestart,
			env,
			func(err error) {
				params.Logger.Log(logger.Info, "runOnConferenceCreate command exited: %v", err)
			})
	}

	return func() {
		if cmd != nil {
			cmd.Close()
			params.Logger.Log(logger.Info, "runOnConferenceCreate command stopped")
		}

		if params.RunOnConferenceEmpty != "" {
			params.Logger.Log(logger.Info, "runOnConferenceEmpty command launched")
			externalcmd.NewCmd(
				params.ExternalCmdPool,
				params.RunOnConferenceEmpty,
				false,
				env,
				nil)
		}
	}
}
