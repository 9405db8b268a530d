package models

// MessageFrame is one transport-sized piece of a generated response.
// Frames are delivered in Index order; Total is the frame count for the
// whole message.
type MessageFrame struct {
	Index int    `json:"index"`
	Total int    `json:"total"`
	Text  string `json:"text"`
}
