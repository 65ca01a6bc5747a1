package hooks

import (
	"github.com/riftward/sfucore/internal/externalcmd"
	"github.com/riftward/sfucore/internal/logger"
)

// OnParticipantJoinParams are the parameters of OnParticipantJoin.
type OnParticipantJoinParams struct {
	Logger                logger.Writer
	ExternalCmdPool       *externalcmd.Pool
	RunOnParticipantJoin  string
	RunOnParticipantLeave string
	ConferenceID          string
	ParticipantID         string
}

// OnParticipantJoin runs the runOnParticipantJoin hook, if configured, and
// returns a cleanup function that runs runOnParticipantLeave when the
// participant leaves the conference.
func OnParticipantJoin(params OnParticipantJoinParams) func() {
	env := externalcmd.Environment{
		"CONFERENCE_ID":  params.ConferenceID,
		"PARTICIPANT_ID": params.ParticipantID,
	}

	var cmd *externalcmd.Cmd
	if params.RunOnParticipantJoin != "" {
		params.Logger.Log(logger.Info, "runOnParticipantJoin command started")

		cmd = externalcmd.NewCmd(
			params.ExternalCmdPool,
			params.RunOnParticipantJoin,
			false,
			env,
			func(err error) {
				params.Logger.Log(logger.Info, "runOnParticipantJoin command exited: %v", err)
			})
	}

	return func() {
		if cmd != nil {
			cmd.Close()
			params.Logger.Log(logger.Info, "runOnParticipantJoin command stopped")
		}

		if params.RunOnParticipantLeave != "" {
			params.Logger.Log(logger.Info, "runOnParticipantLeave command launched")
			externalcmd.NewCmd(
				params.ExternalCmdPool,
				params.RunOnParticipantLeave,
				false,
				env,
				nil)
		}
	}
}
