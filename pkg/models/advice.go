package models

import (
	"time"
)

// Chat roles
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is one entry in the advisory conversation
type ChatMessage struct {
	ID        string    `json:"id" doc:"Message identifier"`
	Role      string    `json:"role" enum:"user,model" doc:"Author of the message"`
	Text      string    `json:"text" doc:"Message text"`
	CreatedAt time.Time `json:"created_at" doc:"When the message was added"`
}

// HardwareInfo describes the measurement front end sent to the advisor
type HardwareInfo struct {
	Board         string `json:"board"`
	OpAmp         string `json:"op_amp"`
	Divider       string `json:"divider"`
	Bias          string `json:"bias"`
	CurrentSensor string `json:"current_sensor"`
}

// DefaultHardware is the reference build the dashboard targets
var DefaultHardware = HardwareInfo{
	Board:         "Arduino Nano",
	OpAmp:         "LM358",
	Divider:       "200k/10k",
	Bias:          "2.5V",
	CurrentSensor: "SCT-013",
}

// AdviceContext is the reading context attached to every advisory request
type AdviceContext struct {
	Stats    Stats        `json:"stats"`
	Hardware HardwareInfo `json:"hardware"`
}
