package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Ops carried by the notify stream and re-broadcast on the local hub.
const (
	OpTaskStatus   = "task.status"
	OpWalletPoints = "wallet.points"
	OpTaskRefresh  = "task.refresh"
)

type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
	Error   *ErrPayload     `json:"error,omitempty"`
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TaskStatusPayload struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Action       string `json:"action,omitempty"`
	ResultURL    string `json:"result_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Progress     int    `json:"progress,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	UpdatedAt    int64  `json:"updated_at,omitempty"`
}

type WalletPointsPayload struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	Delta     int64  `json:"delta,omitempty"`
	Reason    string `json:"reason,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

func NewEvent(op string, payload any) Message {
	return Message{
		ID:      "evt_" + uuid.NewString(),
		Type:    "event",
		Op:      op,
		Payload: MustRaw(payload),
	}
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ParseMessage rejects frames that cannot carry an event. Callers drop the
// frame with a warning and keep the channel open.
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if strings.TrimSpace(msg.Op) == "" {
		return Message{}, fmt.Errorf("frame has no op")
	}
	return msg, nil
}
