package sbrc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// commandTimeout is the timeout for writing a command to the charger.
	commandTimeout = 5 * time.Second

	// sinkTimeout bounds each sink call for one change.
	sinkTimeout = 5 * time.Second
)

// BridgeConfig holds the settings the bridge needs at runtime.
type BridgeConfig struct {
	// ID identifies this bridge instance in topics and health messages.
	ID      string
	Version string

	// Address is the charger address, reported in health messages.
	Address string

	Model       Model
	ModuleCount int

	HealthInterval time.Duration

	// Discovery enables Home Assistant discovery publishing.
	Discovery       bool
	DiscoveryPrefix string
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// ChangeSink receives every state change the bridge publishes.
// Sinks must not block for long; they run on the change worker.
type ChangeSink interface {
	HandleChange(ctx context.Context, ch Change, snapshot EntitySnapshot)
}

// EntitySnapshot is the state of the changed entity after the change.
type EntitySnapshot struct {
	Kind    EntityKind
	ID      int
	Charger Charger
	Bay     Bay
	Module  Module
}

// CommandRecord describes one executed command for auditing.
type CommandRecord struct {
	ID        string
	Command   string
	Wire      string
	Source    string
	UserID    string
	Success   bool
	Error     string
	Timestamp time.Time
}

// CommandRecorder persists executed commands. Optional.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	Config BridgeConfig

	MQTTClient MQTTClient

	// Charger is the charger connection.
	Charger Connector

	// Logger is optional structured logger.
	Logger Logger

	// Sinks receive every published change. Optional.
	Sinks []ChangeSink

	// Recorder audits executed commands. Optional.
	Recorder CommandRecorder
}

// Bridge connects a charger to the MQTT bus. It handles:
//   - Publishing retained per-entity state as the charger reports changes
//   - Executing commands from MQTT or the API against the charger
//   - Answering read requests from the store
//   - Health reporting and Home Assistant discovery
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      BridgeConfig
	mqtt     MQTTClient
	charger  Connector
	health   *HealthReporter
	sinks    []ChangeSink
	recorder CommandRecorder

	// State cache for change detection, keyed by variable.
	stateCache   map[string]any
	stateCacheMu sync.RWMutex

	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance. Call Start to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Charger == nil {
		return nil, fmt.Errorf("charger client is required")
	}
	if opts.Config.ID == "" {
		return nil, fmt.Errorf("bridge id is required")
	}
	if opts.Config.Model.ID == "" {
		return nil, fmt.Errorf("charger model is required")
	}
	if opts.Config.ModuleCount < 1 {
		opts.Config.ModuleCount = 1
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		mqtt:       opts.MQTTClient,
		charger:    opts.Charger,
		sinks:      opts.Sinks,
		recorder:   opts.Recorder,
		stateCache: make(map[string]any),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:   opts.Config.ID,
		Version:    opts.Config.Version,
		Address:    opts.Config.Address,
		BaysActive: b.ActiveBays(),
		Interval:   opts.Config.HealthInterval,
		Publisher:  opts.MQTTClient,
		Charger:    opts.Charger,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to command and request topics, publishes the current
// state of every active entity and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.charger.SetOnChange(b.handleChange)

	// The connect handshake was applied before the callback existed, so
	// the sinks have not seen it. Ask again now that they are listening.
	if b.charger.IsConnected() {
		sendCtx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		if err := b.charger.Send(sendCtx, GetAllCommand()); err != nil {
			b.logError("failed to request full report", err)
		}
		cancel()
	}

	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	b.publishAllState()
	b.publishStructure()

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.ID,
		"model", b.cfg.Model.ID,
		"bays", b.ActiveBays())
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.charger.SetOnChange(nil)
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Model returns the configured charger model.
func (b *Bridge) Model() Model { return b.cfg.Model }

// ModuleCount returns the configured module count.
func (b *Bridge) ModuleCount() int { return b.cfg.ModuleCount }

// ActiveBays returns the number of bays exposed for the configured model.
func (b *Bridge) ActiveBays() int { return b.cfg.Model.ActiveBays(b.cfg.ModuleCount) }

// Store returns the charger state.
func (b *Bridge) Store() *Store { return b.charger.Store() }

// Stats returns the charger connection statistics.
func (b *Bridge) Stats() ClientStats { return b.charger.Stats() }

// Health returns the current health message.
func (b *Bridge) Health() HealthMessage { return b.health.Current() }

// PublishHealth publishes the current health immediately, e.g. after the
// broker connection is restored and the retained LWT says offline.
func (b *Bridge) PublishHealth() error { return b.health.PublishNow() }

// Variables returns variable definitions for the configured model.
func (b *Bridge) Variables() []VariableDefinition {
	return VariableDefinitions(b.cfg.Model, b.cfg.ModuleCount)
}

// Feedbacks returns feedback definitions for the configured model.
func (b *Bridge) Feedbacks() []FeedbackDefinition {
	return FeedbackDefinitions(b.cfg.Model, b.cfg.ModuleCount)
}

// EvaluateFeedback evaluates a feedback against the current state. Bays
// beyond the configured model are rejected.
func (b *Bridge) EvaluateFeedback(name string, opts FeedbackOptions) (bool, error) {
	if opts.Bay > b.ActiveBays() {
		return false, fmt.Errorf("%w: bay %d exceeds %d active bays", ErrInvalidParameter, opts.Bay, b.ActiveBays())
	}
	return EvaluateFeedback(b.Store(), name, opts)
}

// Execute validates and sends a command to the charger. It returns the
// encoded wire command. Every attempt that reaches the charger, or fails
// validation, is recorded when a recorder is configured.
//
// Errors wrap ErrInvalidParameter, ErrNotConnected or ErrSendFailed.
func (b *Bridge) Execute(ctx context.Context, cmd CommandMessage) (string, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	wire, err := BuildCommand(cmd.Command, cmd.Parameters)
	if err == nil {
		sendCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		err = b.charger.Send(sendCtx, wire)
		cancel()
	}

	b.recordCommand(cmd, wire, err)

	if err != nil {
		return wire, err
	}
	b.logInfo("command sent",
		"command_id", cmd.ID,
		"command", cmd.Command,
		"source", cmd.Source)
	return wire, nil
}

// BuildCommand validates parameters and encodes a bus command name into a
// charger command.
func BuildCommand(command string, params map[string]any) (string, error) {
	switch command {
	case CmdSetStorageMode:
		mode, err := ParseStorageMode(paramString(params, "mode"))
		if err != nil {
			return "", err
		}
		return SetStorageModeCommand(mode), nil

	case CmdFlash:
		return SetFlashCommand(), nil

	case CmdSetDeviceID:
		name, err := ValidateDeviceID(paramString(params, "name"))
		if err != nil {
			return "", err
		}
		return SetDeviceIDCommand(name), nil

	case CmdRefresh:
		return GetAllCommand(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, command)
}

func (b *Bridge) recordCommand(cmd CommandMessage, wire string, err error) {
	if b.recorder == nil {
		return
	}

	rec := CommandRecord{
		ID:        cmd.ID,
		Command:   cmd.Command,
		Wire:      wire,
		Source:    cmd.Source,
		UserID:    cmd.UserID,
		Success:   err == nil,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if recErr := b.recorder.RecordCommand(b.ctx, rec); recErr != nil {
		b.logError("failed to record command", recErr)
	}
}

// handleChange is the charger's change callback.
func (b *Bridge) handleChange(ch Change) {
	if b.stateUnchanged(ch.Variable, ch.Value) {
		return
	}

	snap := b.snapshot(ch.Kind, ch.ID)
	b.publishEntityState(ch.Kind, ch.ID, []string{ch.Variable})

	for _, sink := range b.sinks {
		b.runSink(sink, ch, snap)
	}

	if ch.Structural {
		b.logInfo("module composition changed", "module", ch.ID, "type", ch.Value)
		b.publishStructure()
	}
}

func (b *Bridge) runSink(sink ChangeSink, ch Change, snap EntitySnapshot) {
	ctx, cancel := context.WithTimeout(b.ctx, sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.logError("change sink panic", fmt.Errorf("%v", r))
		}
	}()
	sink.HandleChange(ctx, ch, snap)
}

func (b *Bridge) snapshot(kind EntityKind, id int) EntitySnapshot {
	s := b.Store()
	snap := EntitySnapshot{Kind: kind, ID: id}
	switch kind {
	case EntityCharger:
		snap.Charger = s.Charger()
	case EntityBay:
		snap.Bay = s.Bay(id)
	case EntityModule:
		snap.Module = s.Module(id)
	}
	return snap
}

// stateUnchanged records value and reports whether it matches the
// previously published one. A full report after reconnect repeats every
// value, so most of those are suppressed here.
func (b *Bridge) stateUnchanged(variable string, value any) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	prev, ok := b.stateCache[variable]
	if ok && reflect.DeepEqual(prev, value) {
		return true
	}
	b.stateCache[variable] = value
	return false
}

// EntityState returns the state map published for an entity.
func EntityState(s *Store, kind EntityKind, id int) map[string]any {
	switch kind {
	case EntityCharger:
		c := s.Charger()
		return map[string]any{
			"model":            c.Model,
			"firmware_version": c.FirmwareVersion,
			"device_id":        c.DeviceID,
			"flash":            c.Flash,
			"storage_mode":     c.StorageMode,
		}
	case EntityBay:
		bay := s.Bay(id)
		return map[string]any{
			"name":                 bay.Name,
			"detected":             bay.Detected,
			"time_to_full":         bay.TimeToFull,
			"time_to_full_string":  bay.TimeToFullString,
			"state":                string(bay.State),
			"charge":               bay.Charge,
			"current_capacity":     bay.CurrentCapacity,
			"current_capacity_max": bay.CurrentCapacityMax,
			"capacity_max":         bay.CapacityMax,
			"cycle_count":          bay.CycleCount,
			"temperature_c":        bay.TemperatureC,
			"temperature_f":        bay.TemperatureF,
			"health":               bay.Health,
			"bars":                 bay.Bars,
			"error":                bay.Error,
		}
	case EntityModule:
		return map[string]any{"type": s.Module(id).Type}
	}
	return nil
}

func (b *Bridge) publishEntityState(kind EntityKind, id int, changed []string) {
	entity := EntityName(kind, id)
	msg := NewStateMessage(entity, EntityState(b.Store(), kind, id), changed)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(StateTopic(entity), payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// publishAllState publishes the charger, every active bay and, for fixed
// chargers, every module slot.
func (b *Bridge) publishAllState() {
	b.publishEntityState(EntityCharger, 0, nil)
	for i := 1; i <= b.ActiveBays(); i++ {
		b.publishEntityState(EntityBay, i, nil)
	}
	if !b.cfg.Model.Modular {
		for i := 1; i <= MaxModuleCount; i++ {
			b.publishEntityState(EntityModule, i, nil)
		}
	}
}

// publishStructure publishes variable definitions and, when enabled,
// Home Assistant discovery configs.
func (b *Bridge) publishStructure() {
	payload, err := json.Marshal(map[string]any{
		"bridge":      b.cfg.ID,
		"model":       b.cfg.Model,
		"modules":     b.Store().Modules(),
		"variables":   b.Variables(),
		"feedbacks":   b.Feedbacks(),
		"timestamp":   time.Now().UTC(),
		"active_bays": b.ActiveBays(),
	})
	if err != nil {
		b.logError("failed to marshal variables", err)
		return
	}
	if err := b.mqtt.Publish(VariablesTopic(), payload, 1, true); err != nil {
		b.logError("failed to publish variables", err)
	}

	if !b.cfg.Discovery {
		return
	}
	msgs, err := BuildDiscovery(b.cfg.DiscoveryPrefix, b.cfg.ID, b.cfg.Model, b.cfg.ModuleCount, b.Store().Charger())
	if err != nil {
		b.logError("failed to build discovery", err)
		return
	}
	for _, m := range msgs {
		if err := b.mqtt.Publish(m.Topic, m.Payload, 1, true); err != nil {
			b.logError("failed to publish discovery", err)
			return
		}
	}
	b.logDebug("published discovery", "entities", len(msgs))
}

func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	switch messageType := parts[1]; messageType {
	case "command":
		b.handleCommand(payload)
	case "request":
		b.handleRequest(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", messageType))
	}
}

func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.logInfo("received command", "command_id", cmd.ID, "command", cmd.Command)

	wire, err := b.Execute(b.ctx, cmd)
	if err != nil {
		b.publishAckError(cmd, AckErrorCode(err), err.Error())
		return
	}
	b.publishAck(cmd, wire)
}

// AckErrorCode maps an execution error to a bus error code.
func AckErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrInvalidParameter):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrNotConnected):
		return ErrCodeDeviceUnreachable
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, ErrSendFailed):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(cmd CommandMessage, wire string) {
	payload, err := json.Marshal(NewAckMessage(cmd, AckAccepted, wire))
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(b.cfg.ID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	payload, err := json.Marshal(NewAckError(cmd, code, message))
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(b.cfg.ID), payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}
	b.logError("command failed", fmt.Errorf("code=%s message=%s", code, message))
}

func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}

	b.logInfo("received request", "request_id", req.RequestID, "action", req.Action)

	resp := b.HandleRequest(req)

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}
	if err := b.mqtt.Publish(ResponseTopic(req.RequestID), respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// HandleRequest answers a request from the current state.
func (b *Bridge) HandleRequest(req RequestMessage) ResponseMessage {
	switch req.Action {
	case ActionReadAll:
		return b.respond(req, b.readAll(), nil)

	case ActionReadBay:
		id := paramInt(req.Parameters, "bay")
		if id < 1 || id > b.ActiveBays() {
			return b.respond(req, nil, &ResponseError{
				Code:    ErrCodeInvalidParameters,
				Message: fmt.Sprintf("bay must be 1-%d", b.ActiveBays()),
			})
		}
		return b.respond(req, map[string]any{"bay": b.Store().Bay(id)}, nil)

	case ActionEvaluateFeedback:
		name := paramString(req.Parameters, "feedback")
		opts := FeedbackOptions{
			Bay:           paramInt(req.Parameters, "bay"),
			State:         BayState(paramString(req.Parameters, "state")),
			Error:         paramString(req.Parameters, "error"),
			Charge:        paramString(req.Parameters, "charge"),
			ChargeGreater: paramBool(req.Parameters, "charge_greater", true),
		}
		value, err := b.EvaluateFeedback(name, opts)
		if err != nil {
			code := ErrCodeInvalidParameters
			if errors.Is(err, ErrUnknownFeedback) {
				code = ErrCodeInvalidCommand
			}
			return b.respond(req, nil, &ResponseError{Code: code, Message: err.Error()})
		}
		return b.respond(req, map[string]any{"feedback": name, "value": value}, nil)

	case ActionVariables:
		return b.respond(req, map[string]any{
			"definitions": b.Variables(),
			"values":      VariableValues(b.Store(), b.cfg.Model, b.cfg.ModuleCount),
		}, nil)
	}

	return b.respond(req, nil, &ResponseError{
		Code:    ErrCodeInvalidCommand,
		Message: fmt.Sprintf("unknown action: %s", req.Action),
	})
}

func (b *Bridge) readAll() map[string]any {
	s := b.Store()
	bays := make([]Bay, 0, b.ActiveBays())
	for i := 1; i <= b.ActiveBays(); i++ {
		bays = append(bays, s.Bay(i))
	}
	return map[string]any{
		"charger": s.Charger(),
		"bays":    bays,
		"modules": s.Modules(),
	}
}

func (b *Bridge) respond(req RequestMessage, data map[string]any, respErr *ResponseError) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   respErr == nil,
		Data:      data,
		Error:     respErr,
	}
}

func paramString(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func paramInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return 0
}

func paramBool(params map[string]any, key string, def bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
