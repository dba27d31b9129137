package transport

import "time"

type MessageType string

const (
	// Outbound intents.
	MessageTypeStartRecording    MessageType = "start_recording"
	MessageTypeStopRecording     MessageType = "stop_recording"
	MessageTypeResetRecording    MessageType = "reset_recording"
	MessageTypeSubscribeChannels MessageType = "subscribe_channels"

	// Inbound events.
	MessageTypeStateUpdate         MessageType = "state_update"
	MessageTypeTranscriptionResult MessageType = "transcription_result"
	MessageTypeError               MessageType = "error"
	MessageTypeMessage             MessageType = "message"
)

// Channel topics the client declares interest in.
const (
	ChannelSTT           = "stt"
	ChannelRecording     = "recording"
	ChannelTranscription = "transcription"
	ChannelProcessing    = "processing"
)

// TopicWildcard matches every topic in OnMessage subscriptions.
const TopicWildcard = "*"

// Envelope is the single frame format carried over the channel, both
// directions. Unused fields are omitted on the wire.
type Envelope struct {
	Type      MessageType    `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Channels  []string       `json:"channels,omitempty"`
	State     string         `json:"state,omitempty"`
	Text      string         `json:"text,omitempty"`
	ResultID  string         `json:"result_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Topic     string         `json:"topic,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
}

// StateEvent is the authoritative recording state reported by the server.
type StateEvent struct {
	State string
}

// TranscriptionEvent carries one transcription result. ResultID is stable
// across re-deliveries of the same result.
type TranscriptionEvent struct {
	ResultID string
	Text     string
}

// ErrorEvent carries a classifiable error message from the server or the
// transport itself.
type ErrorEvent struct {
	Message string
}

// TopicEvent is an out-of-band status message on a named topic.
type TopicEvent struct {
	Topic string
	Data  map[string]any
}
