package signal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

const (
	phoenixTopic = "phoenix"

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"

	statusOK = "ok"
)

var emptyPayload = json.RawMessage(`{}`)

// Frame is one message of the Phoenix v2 serializer: [join_ref, ref, topic, event, payload].
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = emptyPayload
	}
	return json.Marshal([]any{nullable(f.JoinRef), nullable(f.Ref), f.Topic, f.Event, payload})
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 5 {
		return fmt.Errorf("phoenix frame has %d elements, want 5", len(parts))
	}

	var joinRef, ref *string
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return fmt.Errorf("join_ref: %w", err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	if err := json.Unmarshal(parts[2], &f.Topic); err != nil {
		return fmt.Errorf("topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &f.Event); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	if joinRef != nil {
		f.JoinRef = *joinRef
	}
	if ref != nil {
		f.Ref = *ref
	}
	f.Payload = parts[4]
	return nil
}

func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return emptyPayload, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// reply is the payload of a phx_reply frame.
type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

var errMissingStatus = errors.New("reply has no status")

func decodeReply(payload json.RawMessage) (reply, error) {
	var r reply
	if err := json.Unmarshal(payload, &r); err != nil {
		return r, err
	}
	if r.Status == "" {
		return r, errMissingStatus
	}
	if bytes.Equal(r.Response, []byte("null")) {
		r.Response = nil
	}
	return r, nil
}
