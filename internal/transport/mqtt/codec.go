package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgehub-io/forgehub/internal/aggregator/model"
)

// Wire type names. These are the protocol contract with modules and the
// supervisor; renaming one breaks deployed peers.
const (
	typeTelemetry     = "telemetry"
	typeModuleAck     = "module-ack"
	typeModuleNack    = "module-nack"
	typeCommand       = "command"
	typeEmergencyStop = "emergency-stop"
	typeHeartbeat     = "heartbeat"

	typeModuleCommand = "module-command"
	typeReceipt       = "receipt"
	typeSnapshot      = "snapshot"
	typeAlert         = "alert"
	typeLiveness      = "liveness"
)

// Envelope attaches routing metadata to a message payload. Framing below the
// envelope is the broker's concern.
type Envelope struct {
	Type          string          `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	CorrelationID string          `json:"correlationID"`
	Sender        string          `json:"sender,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Encode wraps an outbound message in an envelope and serializes it.
func Encode(msg model.Outbound, sender string, now time.Time) ([]byte, error) {
	var (
		typ     string
		payload any
	)

	switch m := msg.(type) {
	case model.ModuleCommand:
		typ, payload = typeModuleCommand, m
	case model.RoutingReceipt:
		typ, payload = typeReceipt, m
	case model.Snapshot:
		typ, payload = typeSnapshot, m
	case model.Alert:
		typ, payload = typeAlert, m
	case model.LivenessBroadcast:
		typ, payload = typeLiveness, m
	case model.EmergencyStop:
		typ, payload = typeEmergencyStop, m
	default:
		return nil, fmt.Errorf("cannot encode outbound message of type %T", msg)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}

	return json.Marshal(Envelope{
		Type:          typ,
		Timestamp:     now.UnixMilli(),
		CorrelationID: uuid.NewString(),
		Sender:        sender,
		Payload:       raw,
	})
}

// Decode parses an envelope into its typed inbound variant. The returned
// sender is the envelope's Sender field, possibly empty; callers fall back
// to topic-derived addressing.
func Decode(data []byte) (model.Inbound, string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("unmarshal envelope: %w", err)
	}

	var (
		msg model.Inbound
		err error
	)

	switch env.Type {
	case typeTelemetry:
		var m model.TelemetryReport
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case typeModuleAck:
		var m model.ModuleAck
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case typeModuleNack:
		var m model.ModuleNack
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case typeCommand:
		var m model.ControlCommand
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case typeEmergencyStop:
		var m model.EmergencyStop
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	case typeHeartbeat:
		var m model.Heartbeat
		err = json.Unmarshal(env.Payload, &m)
		msg = m
	default:
		return nil, env.Sender, fmt.Errorf("unrecognized message type %q", env.Type)
	}

	if err != nil {
		return nil, env.Sender, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return msg, env.Sender, nil
}
