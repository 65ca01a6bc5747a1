package conference

import "github.com/riftward/sfucore/internal/mediaengine"

// JoinResult is returned by Join.
type JoinResult struct {
	RouterRTPCapabilities mediaengine.RTPCapabilities
}

// ConsumerDescriptor is one element of the array returned by
// ConsumeFromParticipant.
type ConsumerDescriptor struct {
	ID                   string
	ProducerID           string
	Kind                 mediaengine.Kind
	RTPParameters        mediaengine.RTPParameters
	StreamType           mediaengine.StreamType
	ProducerParticipantID string
}

// LeaveReport is returned by Leave.
type LeaveReport struct {
	ClosedProducerIDs []string
	ClosedConsumerIDs []string
}

// ParticipantSummary is one element of the array returned by
// GetParticipants.
type ParticipantSummary struct {
	ParticipantID   string
	ParticipantName string
}
