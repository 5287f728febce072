package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/govoice/internal/bus"
	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/llm"
	"github.com/nextlevelbuilder/govoice/internal/realtime"
	"github.com/nextlevelbuilder/govoice/internal/sessions"
	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/internal/tasks"
	"github.com/nextlevelbuilder/govoice/internal/telemetry"
	"github.com/nextlevelbuilder/govoice/internal/tts"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

const (
	// storageTimeout bounds each persistence call issued from a handler or
	// background task.
	storageTimeout = 5 * time.Second
	// ttsTimeout bounds one synthesis round trip.
	ttsTimeout = 15 * time.Second
	// summaryTimeout bounds one digest round trip.
	summaryTimeout = 20 * time.Second
)

// IntentCompleter resolves one intent turn against the language model.
type IntentCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*protocol.IntentResponse, error)
}

// Digester produces the bullet digest for conversation_summary_request.
type Digester interface {
	Summarize(ctx context.Context, history []protocol.SummaryTurn) (string, error)
}

// CredentialMinter mints ephemeral realtime voice credentials.
type CredentialMinter interface {
	MintEphemeral(ctx context.Context, sessionID, userID, email string) (*protocol.RealtimeSessionResponse, error)
}

// AgentCompiler serves compiled agent documents for client_ready.
type AgentCompiler interface {
	GetCompiledAgent(ctx context.Context, agentID string) (*protocol.CompiledAgent, error)
}

// Deps carries the orchestrator's collaborators. Tests swap individual
// entries for stubs.
type Deps struct {
	Stores     *store.Stores
	Catalog    AgentCompiler
	LLM        IntentCompleter
	TTS        tts.Synthesizer
	Realtime   CredentialMinter
	Summarizer Digester
	Registry   *sessions.Registry
	Bus        *bus.SessionBus
	Tasks      *tasks.Runner
	Clock      func() time.Time
	Log        *slog.Logger
}

// Orchestrator routes frames between sockets, storage, the model and the
// synthesizer. Turn handling for a session is serialized on the session's
// turn lock; everything slow after the model reply runs as a background task
// so the read loop is never blocked.
type Orchestrator struct {
	cfg        *config.Config
	log        *slog.Logger
	stores     *store.Stores
	catalog    AgentCompiler
	llm        IntentCompleter
	tts        tts.Synthesizer
	realtime   CredentialMinter
	summarizer Digester
	registry   *sessions.Registry
	bus        *bus.SessionBus
	tasks      *tasks.Runner
	clock      func() time.Time
}

// NewOrchestrator wires the frame handlers to d.
func NewOrchestrator(cfg *config.Config, d Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		log:        d.Log,
		stores:     d.Stores,
		catalog:    d.Catalog,
		llm:        d.LLM,
		tts:        d.TTS,
		realtime:   d.Realtime,
		summarizer: d.Summarizer,
		registry:   d.Registry,
		bus:        d.Bus,
		tasks:      d.Tasks,
		clock:      d.Clock,
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}

// OnEvict finalizes an idle session reaped by the registry: the persisted
// row is closed out as completed and any in-flight background work for the
// session is cancelled. Wire it into sessions.Config.OnEvict.
func (o *Orchestrator) OnEvict(st *sessions.State) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	now := o.clock()
	if err := o.stores.Sessions.SetStatus(ctx, st.SessionID, store.SessionCompleted, &now); err != nil {
		o.log.Warn("session.evict_finalize_failed", "session_id", st.SessionID, "error", err)
	}
	o.tasks.CancelSession(st.SessionID)
}

// connect binds the socket to its user and session row, registers it on the
// bus and confirms readiness with a status frame. Called once per socket
// before any frame is dispatched.
func (o *Orchestrator) connect(ctx context.Context, c *Client) error {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.connect",
		trace.WithAttributes(attribute.String("session.id", c.sessionID)))
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	user, err := o.stores.Users.FindOrCreateByEmail(sctx, c.email)
	if err != nil {
		o.sendErrorTo(c, "could not resolve user identity")
		return fmt.Errorf("resolve user: %w", err)
	}

	now := o.clock()
	if err := o.stores.Users.UpdateActivity(sctx, user.ID, now); err != nil {
		o.log.Warn("user.activity_update_failed", "user_id", user.ID, "error", err)
	}

	if _, err := o.stores.Sessions.FindOrCreate(sctx, c.sessionID, user.ID, user.Email, store.SessionContext{}); err != nil {
		o.sendErrorTo(c, "could not open session")
		return fmt.Errorf("open session: %w", err)
	}

	st, created := o.registry.Attach(c.sessionID, user.ID, user.Email)
	if created {
		if err := o.stores.Users.IncrementStats(sctx, user.ID, 1, 0); err != nil {
			o.log.Warn("user.stats_update_failed", "user_id", user.ID, "error", err)
		}
	}

	c.user = user
	c.state = st
	o.bus.Subscribe(c.sessionID, c.id, c)
	st.SetPhase(sessions.PhaseIdle)

	o.log.Info("session.connected",
		"session_id", c.sessionID, "user_id", user.ID,
		"new_session", created, "sockets", o.bus.Count(c.sessionID))
	o.publish(c.sessionID, protocol.TypeStatus, protocol.StatusPayload{
		Message: "session " + c.sessionID + " ready",
	})
	return nil
}

// disconnect drops the socket from the bus. The registry entry survives so a
// reconnect picks up the same cursor; the idle sweeper reaps it otherwise.
// When the last socket goes, in-flight background work for the session is
// cancelled.
func (o *Orchestrator) disconnect(c *Client) {
	if c.state == nil {
		return
	}
	remaining := o.bus.Unsubscribe(c.sessionID, c.id)
	if remaining == 0 {
		o.tasks.CancelSession(c.sessionID)
	}
	o.log.Info("session.disconnected", "session_id", c.sessionID, "remaining_sockets", remaining)
}

// dispatch decodes one inbound frame and routes it. Malformed JSON earns an
// error frame but keeps the socket open; unknown frame types are ignored so
// newer clients can talk to older gateways.
func (o *Orchestrator) dispatch(ctx context.Context, c *Client, data []byte) {
	var f protocol.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		o.sendErrorTo(c, "malformed frame: invalid JSON")
		return
	}
	if c.state != nil {
		c.state.Touch(o.clock())
	}

	switch f.Type {
	case protocol.TypeRealtimeSessionRequest:
		o.handleRealtimeSession(ctx, c, &f)
	case protocol.TypeClientReadyRequest:
		o.handleClientReady(ctx, c, &f)
	case protocol.TypeUserMessage:
		o.handleUserMessage(ctx, c, &f)
	case protocol.TypeTTSRequest:
		o.handleTTSRequest(c, &f)
	case protocol.TypeConversationSummaryRequest:
		o.handleSummaryRequest(c, &f)
	case protocol.TypeConversationCompleted:
		o.handleConversationCompleted(ctx, c, &f)
	case protocol.TypeTest:
		o.publishStatus(c.sessionID, "test acknowledged")
	default:
		o.log.Warn("gateway.unknown_frame", "frame_type", f.Type, "session_id", c.sessionID)
	}
}

// handleRealtimeSession mints an ephemeral credential for the requesting
// socket. The secret goes to that socket only, never through the bus.
func (o *Orchestrator) handleRealtimeSession(ctx context.Context, c *Client, f *protocol.Frame) {
	var req protocol.RealtimeSessionRequest
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &req); err != nil {
			o.sendErrorTo(c, "malformed realtime_session_request payload")
			return
		}
	}
	email := strings.TrimSpace(req.UserEmail)
	if email == "" {
		email = c.email
	}
	if !strings.Contains(email, "@") {
		o.sendErrorTo(c, "a valid userEmail is required")
		return
	}

	resp, err := o.realtime.MintEphemeral(ctx, c.sessionID, c.user.ID, email)
	if errors.Is(err, realtime.ErrDisabled) {
		o.sendErrorTo(c, "realtime voice is not configured on this gateway")
		return
	}
	if err != nil {
		o.log.Error("realtime.mint_failed", "session_id", c.sessionID, "error", err)
		o.sendErrorTo(c, "could not create a realtime session")
		return
	}
	o.sendTo(c, protocol.TypeRealtimeSessionResponse, resp)
}

// handleClientReady compiles the requested agent and snapshots the user's
// history. The response goes to the requesting socket; other sockets of the
// session already hold their own copy or will ask themselves.
func (o *Orchestrator) handleClientReady(ctx context.Context, c *Client, f *protocol.Frame) {
	var req protocol.ClientReadyRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		o.sendErrorTo(c, "malformed client_ready_request payload")
		return
	}
	if req.AgentID == "" {
		o.sendErrorTo(c, "agentId is required")
		return
	}

	c.state.SetPhase(sessions.PhaseAwaitingAgent)

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	agent, err := o.catalog.GetCompiledAgent(sctx, req.AgentID)
	if err != nil {
		o.log.Error("catalog.compile_failed", "agent_id", req.AgentID, "error", err)
		o.sendErrorTo(c, "could not load agent "+req.AgentID)
		return
	}
	if agent == nil {
		o.sendErrorTo(c, "agent "+req.AgentID+" not found")
		return
	}

	info := o.buildUserInfo(sctx, c.user)

	c.state.BindAgent(req.AgentID)
	c.state.SetPhase(sessions.PhaseInIntent)

	o.log.Info("session.client_ready",
		"session_id", c.sessionID, "agent_id", req.AgentID,
		"returning_user", info.HasInteractedBefore)
	o.sendTo(c, protocol.TypeClientReadyResponse, protocol.ClientReadyResponse{
		Agent:    agent,
		UserInfo: info,
	})
}

// handleUserMessage runs one intent turn: resolve the model reply, answer
// immediately, then fan the slow side effects out to background tasks. Turns
// for one session are serialized on the session turn lock even when several
// sockets feed it.
func (o *Orchestrator) handleUserMessage(ctx context.Context, c *Client, f *protocol.Frame) {
	msg, err := protocol.DecodeUserMessage(f.Data)
	if err != nil {
		o.sendErrorTo(c, "malformed user_message payload")
		return
	}

	if strings.TrimSpace(msg.Prompt) == protocol.GreetingCommand {
		o.handleGreeting(c)
		return
	}

	ctx, span := telemetry.Tracer().Start(ctx, "intent.turn",
		trace.WithAttributes(attribute.String("session.id", c.sessionID)))
	defer span.End()

	st := c.state
	st.TurnLock()
	defer st.TurnUnlock()
	st.BeginProcessing()
	defer st.EndProcessing()
	start := o.clock()

	if msg.ConversationID != "" {
		st.SetConversationID(msg.ConversationID)
	}
	if msg.AgentID != "" && st.AgentID() == "" {
		st.BindAgent(msg.AgentID)
	}

	userPrompt := msg.Prompt
	if strings.TrimSpace(userPrompt) == "" {
		userPrompt = msg.UserTranscript
	}

	resp, err := o.llm.Complete(ctx, o.systemPrompt(), userPrompt)
	if err != nil {
		// Degrade to the neutral envelope; the turn still answers.
		o.log.Warn("intent.llm_failed", "session_id", c.sessionID, "error", err)
		resp = llm.DefaultIntentResponse()
	}
	if resp.Fields == nil {
		resp.Fields = map[string]string{}
	}
	if strings.TrimSpace(resp.NextPrompt) == "" {
		resp.NextPrompt = FallbackPrompt(msg.IntentPrompt)
	}

	// The spoken reply must not wait on storage or synthesis.
	o.publish(c.sessionID, protocol.TypeAIResponse, protocol.AIResponse{IntentResponse: *resp})

	if resp.IsCompleted {
		st.MergeFields(resp.Fields)
		// Cursor bookkeeping needs a bound agent to know the script shape.
		if counts := o.intentCounts(ctx, st.AgentID()); len(counts) > 0 {
			if st.AdvanceIntent(counts) {
				st.SetPhase(sessions.PhaseCompleted)
			}
		}
	} else {
		st.BumpRetry()
	}

	span.SetAttributes(
		attribute.String("intent.id", effectiveIntentID(msg, resp)),
		attribute.Bool("intent.completed", resp.IsCompleted),
	)
	o.log.Info("intent.turn",
		"session_id", c.sessionID, "intent_id", effectiveIntentID(msg, resp),
		"completed", resp.IsCompleted, "elapsed_ms", o.clock().Sub(start).Milliseconds())

	o.scheduleTurnEffects(c, msg, resp, start)
}

// scheduleTurnEffects queues the post-reply work for one turn: synthesis,
// the conversation log, the intent extraction record and the derived meal
// projection. Each task is independent and idempotent, so a saturated
// executor dropping one degrades that concern only.
func (o *Orchestrator) scheduleTurnEffects(c *Client, msg protocol.UserMessage, resp *protocol.IntentResponse, start time.Time) {
	sessionID, userID := c.sessionID, c.user.ID

	if !o.cfg.PerformanceModeEnabled() {
		speak := resp.NextPrompt
		o.tasks.Submit(sessionID, "turn_tts", func(tctx context.Context) error {
			return o.speak(tctx, sessionID, speak)
		})
	}

	userText := strings.TrimSpace(msg.UserTranscript)
	if userText == "" {
		userText = msg.Prompt
	}
	mood := classifySentiment(userText)
	delta := engagementDelta(resp.IsCompleted, mood)
	mealCtx := ""
	if store.ValidMealType(resp.Fields["mealType"]) {
		mealCtx = store.NormalizeMealType(resp.Fields["mealType"])
	}
	elapsed := o.clock().Sub(start).Milliseconds()
	aiText := resp.NextPrompt
	confidence := msg.STTConfidence
	o.tasks.Submit(sessionID, "persist_turn", func(tctx context.Context) error {
		sctx, cancel := context.WithTimeout(tctx, storageTimeout)
		defer cancel()
		if _, err := o.stores.Conversations.AppendMessage(sctx, sessionID, userID, store.Message{
			Type:      store.MessageUser,
			Content:   userText,
			Timestamp: start,
			Metadata:  store.MessageMetadata{MealContext: mealCtx, Sentiment: mood, Confidence: confidence},
		}); err != nil {
			return fmt.Errorf("append user message: %w", err)
		}
		if _, err := o.stores.Conversations.AppendMessage(sctx, sessionID, userID, store.Message{
			Type:      store.MessageAI,
			Content:   aiText,
			Timestamp: o.clock(),
			Metadata:  store.MessageMetadata{MealContext: mealCtx, ProcessingTime: elapsed},
		}); err != nil {
			return fmt.Errorf("append ai message: %w", err)
		}
		return nil
	})

	if id := effectiveIntentID(msg, resp); id != "" && (resp.IsCompleted || hasFieldValues(resp.Fields)) {
		rec := &store.IntentResponseRecord{
			UserID:          userID,
			SessionID:       sessionID,
			ConversationRef: conversationRef(msg, c.state),
			SectionID:       msg.SectionID.String(),
			IntentID:        id,
			UserTranscript:  userText,
			IntentPrompt:    msg.IntentPrompt,
			Fields:          resp.Fields,
			IsCompleted:     resp.IsCompleted,
		}
		o.tasks.Submit(sessionID, "persist_intent", func(tctx context.Context) error {
			sctx, cancel := context.WithTimeout(tctx, storageTimeout)
			defer cancel()
			return o.stores.IntentResponses.CreateOrAppend(sctx, rec)
		})
	}

	// One context writer per turn: the meal task folds the mood reading in
	// when it runs, otherwise a dedicated task carries it.
	if resp.IsCompleted && store.ValidMealType(resp.Fields["mealType"]) &&
		strings.TrimSpace(resp.Fields["foodsLogged"]) != "" {
		fields := resp.Fields
		o.tasks.Submit(sessionID, "persist_meal", func(tctx context.Context) error {
			return o.recordMeal(tctx, sessionID, userID, fields, mood, delta)
		})
	} else {
		o.tasks.Submit(sessionID, "persist_context", func(tctx context.Context) error {
			return o.updateTurnContext(tctx, sessionID, mood, delta)
		})
	}
}

// updateTurnContext folds one turn's mood reading and engagement nudge into
// the persisted session context.
func (o *Orchestrator) updateTurnContext(ctx context.Context, sessionID, mood string, delta int) error {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	sess, err := o.stores.Sessions.BySessionID(sctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	sessCtx := sess.Context
	sessCtx.Mood = mood
	sessCtx.Engagement = clampEngagement(sessCtx.Engagement + delta)
	if err := o.stores.Sessions.UpdateContext(sctx, sessionID, sessCtx); err != nil {
		return fmt.Errorf("session context: %w", err)
	}
	return nil
}

// recordMeal projects a completed meal intent into the food ledger and the
// rollups hanging off the conversation, session and user. Carries the turn's
// mood reading so the session context is written once per turn.
func (o *Orchestrator) recordMeal(ctx context.Context, sessionID, userID string, fields map[string]string, mood string, delta int) error {
	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	mealType := store.NormalizeMealType(fields["mealType"])
	logged := store.SplitFoodsLogged(fields["foodsLogged"])
	now := o.clock()

	entry := &store.FoodEntry{
		UserID:        userID,
		SessionID:     sessionID,
		MealType:      mealType,
		FoodsLogged:   logged,
		TotalCalories: parseMacro(fields["totalCalories"]),
		TotalProtein:  parseMacro(fields["totalProtein"]),
		TotalCarbs:    parseMacro(fields["totalCarbs"]),
		TotalFat:      parseMacro(fields["totalFat"]),
		Date:          now,
	}
	if err := o.stores.FoodEntries.Create(sctx, entry); err != nil {
		return fmt.Errorf("food entry: %w", err)
	}

	if err := o.stores.Conversations.Ensure(sctx, sessionID, userID); err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	if err := o.stores.Conversations.UpdateSummary(sctx, sessionID, store.ConversationSummary{
		MealType:         mealType,
		FoodsLogged:      logged,
		TotalCalories:    entry.TotalCalories,
		CompletionStatus: store.CompletionComplete,
		IsCompleteMeal:   true,
	}); err != nil {
		return fmt.Errorf("conversation summary: %w", err)
	}

	sess, err := o.stores.Sessions.BySessionID(sctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	sessCtx := sess.Context
	sessCtx.LastMealType = mealType
	sessCtx.LastMealDate = &now
	sessCtx.Mood = mood
	sessCtx.Engagement = clampEngagement(sessCtx.Engagement + delta)
	if err := o.stores.Sessions.UpdateContext(sctx, sessionID, sessCtx); err != nil {
		return fmt.Errorf("session context: %w", err)
	}

	if err := o.stores.Users.IncrementStats(sctx, userID, 0, 1); err != nil {
		return fmt.Errorf("user stats: %w", err)
	}

	o.log.Info("meal.recorded", "session_id", sessionID, "user_id", userID,
		"meal_type", mealType, "foods", len(logged))
	return nil
}

// handleGreeting answers the greeting command with a personalized spoken
// opener. Rate limited per user across all of their sessions.
func (o *Orchestrator) handleGreeting(c *Client) {
	if !o.registry.AllowGreeting(c.user.ID) {
		o.sendErrorTo(c, "greeting requested too soon, please wait a few seconds")
		return
	}

	text := greetingText(c.user, o.clock())
	o.publish(c.sessionID, protocol.TypeAIResponse, protocol.AIResponse{
		IntentResponse: protocol.IntentResponse{Fields: map[string]string{}, NextPrompt: text},
	})
	if !o.cfg.PerformanceModeEnabled() {
		o.tasks.Submit(c.sessionID, "greeting_tts", func(tctx context.Context) error {
			return o.speak(tctx, c.sessionID, text)
		})
	}
}

// handleTTSRequest synthesizes arbitrary client text off the read loop.
func (o *Orchestrator) handleTTSRequest(c *Client, f *protocol.Frame) {
	req, err := protocol.DecodeTTSRequest(f.Data)
	if err != nil {
		o.sendErrorTo(c, "malformed tts_request payload")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		o.sendErrorTo(c, "text is required")
		return
	}
	o.tasks.Submit(c.sessionID, "tts_request", func(tctx context.Context) error {
		return o.speak(tctx, c.sessionID, req.Text)
	})
}

// handleSummaryRequest digests the client-provided history in the background
// and answers the requesting socket. Digests are never persisted.
func (o *Orchestrator) handleSummaryRequest(c *Client, f *protocol.Frame) {
	var req protocol.ConversationSummaryRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		o.sendErrorTo(c, "malformed conversation_summary_request payload")
		return
	}
	o.tasks.Submit(c.sessionID, "summary", func(tctx context.Context) error {
		sctx, cancel := context.WithTimeout(tctx, summaryTimeout)
		defer cancel()
		digest, err := o.summarizer.Summarize(sctx, req.ConversationHistory)
		if err != nil {
			o.sendErrorTo(c, "could not summarize the conversation")
			return err
		}
		o.sendTo(c, protocol.TypeConversationSummaryResponse, protocol.ConversationSummaryResponse{
			Summary: digest,
		})
		return nil
	})
}

// handleConversationCompleted finalizes the session: the completion payload
// lands on the session context, the row flips to completed and the in-memory
// phase goes terminal. Acked with a status frame to every socket.
func (o *Orchestrator) handleConversationCompleted(ctx context.Context, c *Client, f *protocol.Frame) {
	var req protocol.ConversationCompleted
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &req); err != nil {
			o.sendErrorTo(c, "malformed conversation_completed payload")
			return
		}
	}

	st := c.state
	st.TurnLock()
	defer st.TurnUnlock()

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	sess, err := o.stores.Sessions.BySessionID(sctx, c.sessionID)
	if err != nil {
		o.log.Error("session.finalize_load_failed", "session_id", c.sessionID, "error", err)
		o.sendErrorTo(c, "could not finalize the session")
		return
	}

	sessCtx := sess.Context
	if len(req.CompletedFields) > 0 {
		sessCtx.Completion = req.CompletedFields
		if eng, ok := engagementFrom(req.CompletedFields); ok {
			sessCtx.Engagement = eng
		}
	}
	if err := o.stores.Sessions.UpdateContext(sctx, c.sessionID, sessCtx); err != nil {
		o.log.Error("session.finalize_context_failed", "session_id", c.sessionID, "error", err)
		o.sendErrorTo(c, "could not finalize the session")
		return
	}

	now := o.clock()
	if err := o.stores.Sessions.SetStatus(sctx, c.sessionID, store.SessionCompleted, &now); err != nil {
		o.log.Error("session.finalize_status_failed", "session_id", c.sessionID, "error", err)
		o.sendErrorTo(c, "could not finalize the session")
		return
	}

	st.SetPhase(sessions.PhaseCompleted)
	o.log.Info("session.completed", "session_id", c.sessionID,
		"fields", len(req.CompletedFields))
	o.publishStatus(c.sessionID, "conversation completed")
}

// speak synthesizes text and fans the audio out to the session. Synthesis
// failure degrades to a text-only tts_response so the client can still
// render something.
func (o *Orchestrator) speak(ctx context.Context, sessionID, text string) error {
	tctx, cancel := context.WithTimeout(ctx, ttsTimeout)
	defer cancel()

	res, err := o.tts.Synthesize(tctx, text)
	if err != nil {
		o.log.Warn("tts.synthesize_failed", "session_id", sessionID, "error", err)
		o.publish(sessionID, protocol.TypeTTSResponse, protocol.TTSResponse{
			Text:     text,
			Duration: tts.EstimateDuration(text),
		})
		return nil
	}
	o.publish(sessionID, protocol.TypeTTSResponse, protocol.TTSResponse{
		Text:     res.Text,
		Audio:    res.Audio,
		Duration: res.Duration,
	})
	return nil
}

// intentCounts shapes the cursor bookkeeping for the bound agent: one count
// per section. A session without an agent gets nil and the cursor simply
// terminates.
func (o *Orchestrator) intentCounts(ctx context.Context, agentID string) []int {
	if agentID == "" {
		return nil
	}
	doc, err := o.catalog.GetCompiledAgent(ctx, agentID)
	if err != nil || doc == nil {
		return nil
	}
	counts := make([]int, len(doc.Sections))
	for i, sec := range doc.Sections {
		counts[i] = len(sec.Intents)
	}
	return counts
}

func (o *Orchestrator) systemPrompt() string {
	if sp := o.cfg.LLMSystemPrompt(); sp != "" {
		return sp
	}
	return defaultSystemPrompt
}

// publish fans a frame out to every socket of the session.
func (o *Orchestrator) publish(sessionID, frameType string, payload any) {
	f, err := protocol.NewFrame(frameType, sessionID, payload, o.clock())
	if err != nil {
		o.log.Error("gateway.frame_marshal_failed", "frame_type", frameType, "error", err)
		return
	}
	o.bus.Publish(sessionID, f)
}

func (o *Orchestrator) publishStatus(sessionID, message string) {
	o.publish(sessionID, protocol.TypeStatus, protocol.StatusPayload{Message: message})
}

// sendTo answers the requesting socket only. Credentials and request-shaped
// responses stay off the bus.
func (o *Orchestrator) sendTo(c *Client, frameType string, payload any) {
	f, err := protocol.NewFrame(frameType, c.sessionID, payload, o.clock())
	if err != nil {
		o.log.Error("gateway.frame_marshal_failed", "frame_type", frameType, "error", err)
		return
	}
	c.SendFrame(f)
}

func (o *Orchestrator) sendErrorTo(c *Client, message string) {
	o.sendTo(c, protocol.TypeError, protocol.ErrorPayload{Message: message})
}

// effectiveIntentID resolves which intent a turn belongs to: structured
// metadata wins, then the id the model echoed, then the id embedded in the
// client's prompt header.
func effectiveIntentID(msg protocol.UserMessage, resp *protocol.IntentResponse) string {
	if id := strings.TrimSpace(msg.IntentID.String()); id != "" {
		return id
	}
	if id := strings.TrimSpace(resp.ID); id != "" {
		return id
	}
	return llm.FindIntentIDHeader(msg.Prompt)
}

// conversationRef picks the grouping key for intent records: the client's
// conversationId when present, else the agent id.
func conversationRef(msg protocol.UserMessage, st *sessions.State) string {
	if msg.ConversationID != "" {
		return msg.ConversationID
	}
	if msg.AgentID != "" {
		return msg.AgentID
	}
	if st != nil {
		if id := st.ConversationID(); id != "" {
			return id
		}
		return st.AgentID()
	}
	return ""
}

func hasFieldValues(fields map[string]string) bool {
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// parseMacro reads a numeric field value, tolerating trailing units like
// "520 kcal".
func parseMacro(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-'
	}); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// engagementFrom extracts a 0-10 engagement score from the completion
// payload when the client reported one.
func engagementFrom(fields map[string]any) (int, bool) {
	v, ok := fields["engagement"]
	if !ok {
		return 0, false
	}
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return int(n), true
}
