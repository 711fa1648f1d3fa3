package protocol

import "time"

// StateChange announces an interaction state transition for UI frontends.
type StateChange struct {
	TurnID    string    `json:"turn_id,omitempty"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice is a user-facing status message. Level distinguishes neutral
// outcomes ("no speech detected") from true errors.
type Notice struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript carries the recognized text for one turn.
type Transcript struct {
	TurnID    string    `json:"turn_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply carries the agent's spoken reply for one turn.
type Reply struct {
	TurnID    string    `json:"turn_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Announce is published once at startup so frontends can discover the client.
type Announce struct {
	NodeID    string    `json:"node_id"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is published periodically while the client is alive.
type Heartbeat struct {
	NodeID    string    `json:"node_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectState             = "voice.state"
	SubjectNotice            = "voice.notice"
	SubjectTranscript        = "voice.transcript"
	SubjectReply             = "voice.reply"
	SubjectPresenceAnnounce  = "voice.presence.announce"
	SubjectPresenceHeartbeat = "voice.presence.heartbeat"
)
