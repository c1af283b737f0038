package domain

import (
	"encoding/json"
	"time"
)

// Pub/sub and WebSocket message types.
const (
	MessageApplicationUpdate = "application_update"
	MessageWelcome           = "welcome"
	MessagePong              = "pong"
	MessageSubscribed        = "subscribed"
	MessageUnsubscribed      = "unsubscribed"
	MessageError             = "error"
)

// WebSocket client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// UpdateMessage is the envelope published on every application update.
type UpdateMessage struct {
	Type string     `json:"type"`
	Data UpdateData `json:"data"`
}

// UpdateData carries the fields clients render in real time.
type UpdateData struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	RiskScore *string `json:"risk_score"`
	UpdatedAt string  `json:"updated_at"`
}

// NewUpdateMessage builds an application_update envelope for app.
// Risk score travels as a string so fixed-point precision survives JSON.
func NewUpdateMessage(app *Application) UpdateMessage {
	var riskScore *string
	if app.RiskScore != nil {
		s := app.RiskScore.StringFixed(2)
		riskScore = &s
	}
	return UpdateMessage{
		Type: MessageApplicationUpdate,
		Data: UpdateData{
			ID:        app.ID.String(),
			Status:    string(app.Status),
			RiskScore: riskScore,
			UpdatedAt: app.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

// Encode marshals the message for the wire.
func (m UpdateMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
