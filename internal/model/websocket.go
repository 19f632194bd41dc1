package model

import "encoding/json"

// Events sent by the browser client
const (
	WSEventWakeGPU          = "wake_gpu"
	WSEventPreprocessImage  = "preprocess_image"
	WSEventStartGeneration  = "start_generation"
	WSEventCancelGeneration = "cancel_generation"
)

// Events sent to the browser client
const (
	WSEventStatus                = "status"
	WSEventProgress              = "progress"
	WSEventFinalSequence         = "final_sequence"
	WSEventPreprocessingComplete = "preprocessing_complete"
)

// WSClientMessage is the envelope for inbound WebSocket messages
type WSClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSServerMessage is the envelope for outbound WebSocket messages
type WSServerMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// WSStatusPayload carries a human-readable status line
type WSStatusPayload struct {
	Msg string `json:"msg"`
}

// WSProgressPayload carries a cosmetic progress percentage in [0,100]
type WSProgressPayload struct {
	Percent float64 `json:"percent"`
}

// WSPreprocessingPayload reports a finished preprocess pass
type WSPreprocessingPayload struct {
	CacheReady bool     `json:"cache_ready"`
	Cached     bool     `json:"cached"`
	Provider   Provider `json:"provider"`
}
