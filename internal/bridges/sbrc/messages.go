package sbrc

import (
	"fmt"
	"strconv"
	"time"
)

// Protocol is the protocol identifier used in bus messages.
const Protocol = "sbrc"

// CommandMessage is sent to the bridge to act on the charger.
// Topic: graylogic/command/sbrc/{bridge_id}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is one of set_storage_mode, flash, set_device_id, refresh.
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"mode": "TOGGLE"} for set_storage_mode
	//   {"name": "RACK 1"} for set_device_id
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "mqtt", "console").
	Source string `json:"source"`

	// UserID is the user who triggered the command (if applicable).
	UserID string `json:"user_id,omitempty"`
}

// Commands accepted on the command topic.
const (
	CmdSetStorageMode = "set_storage_mode"
	CmdFlash          = "flash"
	CmdSetDeviceID    = "set_device_id"
	CmdRefresh        = "refresh"
)

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the charger.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the write did not complete in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/sbrc/{bridge_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	// Wire is the encoded command sent to the charger, if any.
	Wire  string    `json:"wire,omitempty"`
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command and request failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries one entity's current state.
// Topic: graylogic/state/sbrc/{entity}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Entity    string         `json:"entity"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`
	// Changed lists the variables that triggered this publish.
	Changed []string `json:"changed,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	// HealthOffline is published by the broker from the LWT.
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/sbrc
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    *ConnectionStatus `json:"connection,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	// BaysActive is the number of bays the configured model exposes.
	BaysActive int    `json:"bays_active"`
	Reason     string `json:"reason,omitempty"`
}

// ConnectionStatus describes the charger connection.
type ConnectionStatus struct {
	// Status is "connected", "disconnected" or "reconnecting".
	Status       string     `json:"status"`
	Address      string     `json:"address"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	MessagesReceived uint64 `json:"messages_received"`
	CommandsSent     uint64 `json:"commands_sent"`
	FieldErrors      uint64 `json:"field_errors"`
	Errors           uint64 `json:"errors"`
	Reconnects       uint64 `json:"reconnects"`
}

// RequestMessage asks the bridge for data.
// Topic: graylogic/request/sbrc/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	// Action is one of read_all, read_bay, evaluate_feedback, variables.
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Request actions.
const (
	ActionReadAll          = "read_all"
	ActionReadBay          = "read_bay"
	ActionEvaluateFeedback = "evaluate_feedback"
	ActionVariables        = "variables"
)

// ResponseMessage answers a request.
// Topic: graylogic/response/sbrc/{request_id}
type ResponseMessage struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus, wire string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  Protocol,
		Wire:      wire,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	status := AckFailed
	if code == ErrCodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Status:    status,
		Protocol:  Protocol,
		Error:     &AckError{Code: code, Message: message},
	}
}

// NewStateMessage creates a state message for an entity.
func NewStateMessage(entity string, state map[string]any, changed []string) StateMessage {
	return StateMessage{
		Entity:    entity,
		Timestamp: time.Now().UTC(),
		State:     state,
		Protocol:  Protocol,
		Changed:   changed,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats ClientStats, baysActive int, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		BaysActive:    baysActive,
	}

	conn := &ConnectionStatus{Status: "disconnected"}
	switch {
	case stats.Connected:
		conn.Status = "connected"
	case stats.Reconnecting:
		conn.Status = "reconnecting"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		conn.LastActivity = &last
	}
	msg.Connection = conn

	msg.Statistics = &BridgeStatistics{
		MessagesReceived: stats.MessagesRx,
		CommandsSent:     stats.CommandsTx,
		FieldErrors:      stats.FieldErrors,
		Errors:           stats.ErrorsTotal,
		Reconnects:       stats.ReconnectsTotal,
	}
	return msg
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

// TopicPrefix is the base topic for all Gray Logic messages.
const TopicPrefix = "graylogic"

// EntityName returns the topic segment for an entity: "charger", "bay-3"
// or "module-2".
func EntityName(kind EntityKind, id int) string {
	if kind == EntityCharger {
		return kind.String()
	}
	return kind.String() + "-" + strconv.Itoa(id)
}

// CommandTopic returns the topic commands for a bridge are sent to.
// Example: graylogic/command/sbrc/rack-1
func CommandTopic(bridgeID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, bridgeID)
}

// AckTopic returns the topic acknowledgments are published on.
// Example: graylogic/ack/sbrc/rack-1
func AckTopic(bridgeID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, bridgeID)
}

// StateTopic returns the retained state topic for an entity.
// Example: graylogic/state/sbrc/bay-3
func StateTopic(entity string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, entity)
}

// HealthTopic returns the health topic.
// Example: graylogic/health/sbrc
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// RequestTopic returns the topic for a request.
// Example: graylogic/request/sbrc/req-123
func RequestTopic(requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, Protocol, requestID)
}

// ResponseTopic returns the topic for a response.
// Example: graylogic/response/sbrc/req-123
func ResponseTopic(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, Protocol, requestID)
}

// VariablesTopic returns the retained topic listing variable definitions.
// Example: graylogic/config/sbrc/variables
func VariablesTopic() string {
	return fmt.Sprintf("%s/config/%s/variables", TopicPrefix, Protocol)
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefix, Protocol)
}

// RequestSubscribeTopic returns the subscription pattern for all requests.
func RequestSubscribeTopic() string {
	return fmt.Sprintf("%s/request/%s/#", TopicPrefix, Protocol)
}
