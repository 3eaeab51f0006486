package workingsetcompiler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/contextdb/wscompile/compiler"
	"github.com/contextdb/wscompile/compiler/generators"
)

// Component implements the working-set-compiler processor.
type Component struct {
	name       string
	config     Config
	natsClient *natsclient.Client
	logger     *slog.Logger

	engine  *compiler.Engine
	metrics *metrics

	consumer jetstream.Consumer
	stream   jetstream.Stream

	responseBucket jetstream.KeyValue

	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc

	requestsProcessed atomic.Int64
	requestsFailed    atomic.Int64
	lastActivityMu    sync.RWMutex
	lastActivity      time.Time
}

const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
)

// NewComponent creates a new working-set-compiler processor.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	var config Config
	if err := json.Unmarshal(rawConfig, &config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	defaults := DefaultConfig()
	if config.StreamName == "" {
		config.StreamName = defaults.StreamName
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.InputSubjectPattern == "" {
		config.InputSubjectPattern = defaults.InputSubjectPattern
	}
	if config.OutputSubjectPrefix == "" {
		config.OutputSubjectPrefix = defaults.OutputSubjectPrefix
	}
	if config.DefaultBudgetTokens == 0 {
		config.DefaultBudgetTokens = defaults.DefaultBudgetTokens
	}
	if config.SemanticServiceURL == "" {
		config.SemanticServiceURL = defaults.SemanticServiceURL
	}
	if config.LexicalServiceURL == "" {
		config.LexicalServiceURL = defaults.LexicalServiceURL
	}
	if config.DiversityLambda == 0 {
		config.DiversityLambda = defaults.DiversityLambda
	}
	if config.SourceRatioCap == 0 {
		config.SourceRatioCap = defaults.SourceRatioCap
	}
	if config.Ports == nil {
		config.Ports = defaults.Ports
	}
	if config.ResponseBucketName == "" {
		config.ResponseBucketName = defaults.ResponseBucketName
	}
	if config.ResponseTTLHours == 0 {
		config.ResponseTTLHours = defaults.ResponseTTLHours
	}
	if config.RepoRoot == "" {
		config.RepoRoot = os.Getenv("WSCOMPILE_REPO_ROOT")
	}
	if config.RepoRoot == "" {
		var err error
		config.RepoRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := deps.GetLogger()

	gens := []compiler.Generator{
		generators.NewHTTPGen("semantic", config.SemanticServiceURL, "semantic"),
		generators.NewHTTPGen("lexical", config.LexicalServiceURL, "lexical"),
	}
	if config.GraphServiceURL != "" {
		gens = append(gens, generators.NewGraphGen(config.GraphServiceURL))
	}

	engine := compiler.NewEngine(config.RepoRoot, gens)
	engine.Logger = logger
	if config.MemoryServiceURL != "" {
		engine.Memory = compiler.NewMemorySource(config.MemoryServiceURL, http.DefaultClient)
	}

	return &Component{
		name:       "workingset-compiler",
		config:     config,
		natsClient: deps.NATSClient,
		logger:     logger,
		engine:     engine,
		metrics:    newMetrics(prometheus.DefaultRegisterer),
	}, nil
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("initialized workingset-compiler",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"input_pattern", c.config.InputSubjectPattern)
	return nil
}

// Start begins processing compile requests.
func (c *Component) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(stateStopped, stateStarting) {
		current := c.state.Load()
		if current == stateRunning || current == stateStarting {
			return fmt.Errorf("component already running or starting")
		}
		return fmt.Errorf("component in invalid state: %d", current)
	}

	defer func() {
		if c.state.Load() == stateStarting {
			c.state.Store(stateStopped)
		}
	}()

	if c.natsClient == nil {
		return fmt.Errorf("NATS client required")
	}

	js, err := c.natsClient.JetStream()
	if err != nil {
		return fmt.Errorf("get jetstream: %w", err)
	}

	stream, err := js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", c.config.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.config.ConsumerName,
		FilterSubject: c.config.InputSubjectPattern,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       60 * time.Second,
		MaxDeliver:    3,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	responseBucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      c.config.ResponseBucketName,
		Description: "Working set compile responses for HTTP replay",
		TTL:         time.Duration(c.config.ResponseTTLHours) * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create response bucket: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.stream = stream
	c.consumer = consumer
	c.responseBucket = responseBucket
	c.cancel = cancel
	c.startTime = time.Now()
	c.mu.Unlock()

	c.state.Store(stateRunning)

	go c.consumeLoop(subCtx)

	c.logger.Info("workingset-compiler started",
		"stream", c.config.StreamName,
		"consumer", c.config.ConsumerName,
		"subject", c.config.InputSubjectPattern)

	return nil
}

func (c *Component) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.state.Load() != stateRunning {
			return
		}

		msgs, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Debug("fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				if err := msg.Nak(); err != nil {
					c.logger.Warn("failed to NAK message during shutdown", "error", err)
				}
				return
			default:
				c.handleMessage(ctx, msg)
			}
		}

		if msgs.Error() != nil && msgs.Error() != context.DeadlineExceeded {
			c.logger.Warn("message fetch error", "error", msgs.Error())
		}
	}
}

func (c *Component) handleMessage(ctx context.Context, msg jetstream.Msg) {
	if ctx.Err() != nil {
		if err := msg.Nak(); err != nil {
			c.logger.Warn("failed to NAK message during shutdown", "error", err)
		}
		return
	}

	c.requestsProcessed.Add(1)
	c.updateLastActivity()

	var baseMsg message.BaseMessage
	if err := json.Unmarshal(msg.Data(), &baseMsg); err != nil {
		c.logger.Error("failed to parse message", "error", err)
		_ = msg.Nak()
		return
	}

	payloadBytes, err := json.Marshal(baseMsg.Payload())
	if err != nil {
		c.logger.Error("failed to marshal payload", "error", err)
		_ = msg.Nak()
		return
	}

	var reqMsg CompileRequestMessage
	if err := json.Unmarshal(payloadBytes, &reqMsg); err != nil {
		c.logger.Error("failed to unmarshal compile request", "error", err)
		_ = msg.Nak()
		return
	}
	if reqMsg.BudgetTokens == 0 {
		reqMsg.BudgetTokens = c.config.DefaultBudgetTokens
	}
	if reqMsg.SoftPrefs.DiversityLambda == nil {
		configLambda := c.config.DiversityLambda
		reqMsg.SoftPrefs.DiversityLambda = &configLambda
	}
	if reqMsg.SoftPrefs.SourceRatioCap == 0 {
		reqMsg.SoftPrefs.SourceRatioCap = c.config.SourceRatioCap
	}

	if err := reqMsg.Validate(); err != nil {
		c.logger.Error("invalid compile request", "error", err)
		c.requestsFailed.Add(1)
		c.publishErrorResponse(ctx, reqMsg.RequestID, err.Error())
		_ = msg.Ack()
		return
	}

	timer := prometheus.NewTimer(c.metrics.compileDuration)
	resp, err := c.engine.CompileWorkingSet(ctx, reqMsg.CompileRequest)
	timer.ObserveDuration()

	if err != nil {
		c.requestsFailed.Add(1)
		kind := errorKind(err)
		c.metrics.errorsTotal.WithLabelValues(kind).Inc()
		c.logger.Error("compilation failed", "request_id", reqMsg.RequestID, "error", err, "kind", kind)

		if kind == string(compiler.KindCancelled) || kind == string(compiler.KindInternal) {
			_ = msg.Nak()
			return
		}
		c.publishErrorResponse(ctx, reqMsg.RequestID, err.Error())
		_ = msg.Ack()
		return
	}

	c.metrics.candidatesTotal.Add(float64(resp.Stats.CandidatesGenerated))

	if err := c.publishResponse(ctx, resp); err != nil {
		c.logger.Error("failed to publish response", "request_id", reqMsg.RequestID, "error", err)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	c.logger.Info("compiled and published working set",
		"request_id", resp.RequestID,
		"selected", resp.Stats.CandidatesSelected,
		"utilization", resp.Stats.TokenUtilization)
}

func errorKind(err error) string {
	var cerr *compiler.CompileError
	if errors.As(err, &cerr) {
		return string(cerr.Kind)
	}
	return string(compiler.KindInternal)
}

func (c *Component) publishResponse(ctx context.Context, resp *compiler.CompileResponse) error {
	msg := CompileResponseMessage{CompileResponse: *resp}
	baseMsg := message.NewBaseMessage(
		message.Type{Domain: "compile", Category: "response", Version: "v1"},
		&msg,
		"workingset-compiler",
	)

	data, err := json.Marshal(baseMsg)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", c.config.OutputSubjectPrefix, resp.RequestID)
	if err := c.natsClient.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish response: %w", err)
	}

	if err := c.storeResponse(ctx, resp.RequestID, data); err != nil {
		c.logger.Warn("failed to store compile response in KV", "request_id", resp.RequestID, "error", err)
	}

	return nil
}

func (c *Component) storeResponse(ctx context.Context, requestID string, data []byte) error {
	c.mu.RLock()
	bucket := c.responseBucket
	c.mu.RUnlock()

	if bucket == nil {
		return fmt.Errorf("response bucket not initialized")
	}
	_, err := bucket.Put(ctx, requestID, data)
	return err
}

func (c *Component) publishErrorResponse(ctx context.Context, requestID, errMsg string) {
	msg := CompileResponseMessage{
		CompileResponse: compiler.CompileResponse{RequestID: requestID},
		Error:           errMsg,
	}
	baseMsg := message.NewBaseMessage(
		message.Type{Domain: "compile", Category: "response", Version: "v1"},
		&msg,
		"workingset-compiler",
	)
	data, err := json.Marshal(baseMsg)
	if err != nil {
		c.logger.Error("failed to marshal error response", "error", err)
		return
	}
	subject := fmt.Sprintf("%s.%s", c.config.OutputSubjectPrefix, requestID)
	if err := c.natsClient.Publish(ctx, subject, data); err != nil {
		c.logger.Error("failed to publish error response", "request_id", requestID, "error", err)
	}
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	if !c.state.CompareAndSwap(stateRunning, stateStopping) {
		current := c.state.Load()
		if current == stateStopped || current == stateStopping {
			return nil
		}
		return fmt.Errorf("component in unexpected state: %d", current)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.state.Store(stateStopped)

	c.logger.Info("workingset-compiler stopped",
		"requests_processed", c.requestsProcessed.Load(),
		"requests_failed", c.requestsFailed.Load())

	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        "workingset-compiler",
		Type:        "processor",
		Description: "Compiles a bounded, diverse, explainable working set from candidate spans for a given intent and budget",
		Version:     "0.1.0",
	}
}

// InputPorts returns configured input port definitions.
func (c *Component) InputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Inputs))
	for i, p := range c.config.Ports.Inputs {
		ports[i] = component.Port{
			Name:        p.Name,
			Direction:   component.DirectionInput,
			Required:    p.Required,
			Description: p.Description,
			Config:      component.NATSPort{Subject: p.Subject},
		}
	}
	return ports
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, p := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        p.Name,
			Direction:   component.DirectionOutput,
			Required:    p.Required,
			Description: p.Description,
			Config:      component.NATSPort{Subject: p.Subject},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return workingSetCompilerSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	state := c.state.Load()
	running := state == stateRunning

	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	status := "stopped"
	switch state {
	case stateStarting:
		status = "starting"
	case stateRunning:
		status = "running"
	case stateStopping:
		status = "stopping"
	}

	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.requestsFailed.Load()),
		Uptime:     time.Since(startTime),
		Status:     status,
	}
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{
		MessagesPerSecond: 0,
		BytesPerSecond:    0,
		ErrorRate:         0,
		LastActivity:      c.getLastActivity(),
	}
}

func (c *Component) updateLastActivity() {
	c.lastActivityMu.Lock()
	c.lastActivity = time.Now()
	c.lastActivityMu.Unlock()
}

func (c *Component) getLastActivity() time.Time {
	c.lastActivityMu.RLock()
	defer c.lastActivityMu.RUnlock()
	return c.lastActivity
}
