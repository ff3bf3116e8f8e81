package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coreai-dashboard/pkg/advisor"
	"github.com/coreai-dashboard/pkg/ai"
	"github.com/coreai-dashboard/pkg/allocation"
	"github.com/coreai-dashboard/pkg/db"
	"github.com/coreai-dashboard/pkg/metrics"
	"github.com/coreai-dashboard/pkg/portfolio"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message sources.
const (
	SourceWelcome      = "welcome"
	SourceUser         = "user"
	SourceAI           = "ai"
	SourceRules        = "rules"
	SourceInsight      = "insight"
	SourceTokenInsight = "token_insight"
)

const (
	welcomeText   = "Hello! I'm your CoreAI assistant. I can help you manage your portfolio, provide market insights, and suggest optimal allocations. How can I assist you today?"
	rulesPrefix   = "Based on your query, I've analyzed the current market conditions:\n\n"
	insightPrefix = "📊 **AI Market Intelligence Alert**\n\n"

	contextMessages = 10
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageNotFound = errors.New("chat message not found")
	ErrNoChanges       = errors.New("action has no allocation changes")
)

// Assistant is the generative side of the chat. *ai.Engine implements it.
type Assistant interface {
	IsEnabled() bool
	ChatResponse(ctx context.Context, message string, history []ai.Turn) (string, error)
	TokenInsights(ctx context.Context, symbol, marketContext string) (string, error)
}

type Message struct {
	ID        string          `json:"id"`
	Sender    string          `json:"sender"`
	Content   string          `json:"content"`
	Source    string          `json:"source"`
	Action    *advisor.Action `json:"action,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Preview is what the user sees before confirming an action.
type Preview struct {
	Action   *advisor.Action     `json:"action"`
	Proposal *portfolio.Proposal `json:"proposal,omitempty"`
	Note     string              `json:"note,omitempty"`
	// Insight is the follow-up market insight posted for analysis actions.
	Insight *Message `json:"insight,omitempty"`
}

// Service runs the assistant conversation against the persisted portfolio.
type Service struct {
	store     *db.Store
	portfolio *portfolio.Service
	assistant Assistant
	catalog   *advisor.Catalog
	metrics   *metrics.Registry
	limit     int

	now   func() time.Time
	newID func() string

	mu sync.Mutex
}

func New(store *db.Store, pf *portfolio.Service, assistant Assistant, catalog *advisor.Catalog, m *metrics.Registry, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &Service{
		store:     store,
		portfolio: pf,
		assistant: assistant,
		catalog:   catalog,
		metrics:   m,
		limit:     historyLimit,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// History returns the transcript, starting a fresh one with the welcome
// message when it is empty.
func (s *Service) History(ctx context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureWelcome(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	return s.load(limit)
}

// Clear wipes the transcript and starts over with the welcome message.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearChat(); err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	return s.ensureWelcome()
}

// Send stores the user message and produces the assistant's reply.
func (s *Service) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	prior, err := s.record(text)
	if err != nil {
		return nil, err
	}

	// the model round trip runs unlocked
	content, source, action := s.reply(ctx, text, prior)
	s.metrics.ObserveChat(source)

	log.Debug().Str("source", source).Bool("action", action != nil).Msg("💬 Chat reply")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(SenderAI, content, source, action)
}

// record stores the user message and returns the context that preceded it.
func (s *Service) record(text string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureWelcome(); err != nil {
		return nil, err
	}
	prior, err := s.load(contextMessages)
	if err != nil {
		return nil, err
	}
	if _, err := s.save(SenderUser, text, SourceUser, nil); err != nil {
		return nil, err
	}
	return prior, nil
}

func (s *Service) reply(ctx context.Context, text string, prior []Message) (string, string, *advisor.Action) {
	if s.assistant != nil && s.assistant.IsEnabled() {
		if symbol := advisor.TokenQuestion(text); symbol != "" {
			insight, err := s.assistant.TokenInsights(ctx, symbol, "")
			if err == nil || (errors.Is(err, ai.ErrAIUnavailable) && insight != "") {
				return insight, SourceTokenInsight, nil
			}
			log.Warn().Err(err).Str("symbol", symbol).Msg("⚠️ Token insight failed")
		}

		turns := make([]ai.Turn, 0, len(prior))
		for _, m := range prior {
			turns = append(turns, ai.Turn{Sender: m.Sender, Content: m.Content})
		}
		answer, err := s.assistant.ChatResponse(ctx, text, turns)
		if err == nil {
			return answer, SourceAI, s.extractAction(ctx, answer)
		}
		log.Warn().Err(err).Msg("⚠️ AI chat failed, using rule-based reply")
	}

	in := s.catalog.Match(text)
	if live, err := s.portfolio.Live(ctx); err == nil {
		in = advisor.Adapt(in, live)
	} else {
		log.Warn().Err(err).Msg("live allocation unavailable, insight not adapted")
	}
	return rulesPrefix + in.Content, SourceRules, in.Action
}

// extractAction pulls allocation changes out of model text and rebases them
// onto the live portfolio.
func (s *Service) extractAction(ctx context.Context, text string) *advisor.Action {
	action, dropped := advisor.ParseAction(text, s.portfolio.Registry())
	if len(dropped) > 0 {
		s.metrics.ObserveInvalid("drop", len(dropped))
		for _, d := range dropped {
			log.Debug().Err(d).Msg("dropped suggested change")
		}
	}
	if action == nil {
		return nil
	}
	live, err := s.portfolio.Live(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("live allocation unavailable, suggestion not adapted")
		return action
	}
	action.Changes = allocation.Reconcile(action.Changes, live)
	return action
}

// PushInsight posts a random market insight, adapted to the live portfolio.
func (s *Service) PushInsight(ctx context.Context) (*Message, error) {
	live, err := s.portfolio.Live(ctx)
	if err != nil {
		return nil, err
	}
	in := advisor.Adapt(s.catalog.Random(), live)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureWelcome(); err != nil {
		return nil, err
	}
	s.metrics.ObserveChat(SourceInsight)
	return s.save(SenderAI, insightPrefix+in.Content, SourceInsight, in.Action)
}

// MessageAction returns the action attached to a stored message.
func (s *Service) MessageAction(ctx context.Context, id string) (*advisor.Action, error) {
	m, err := s.store.GetChatMessage(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	msg, err := fromRecord(*m)
	if err != nil {
		return nil, err
	}
	if msg.Action == nil {
		return nil, fmt.Errorf("%w: message %s carries no action", ErrNoChanges, id)
	}
	return msg.Action, nil
}

// PrepareAction rebases an action on the current (or pending) allocation and
// returns the preview. Actions without changes yield a note and no proposal;
// analysis actions also post a fresh market insight.
func (s *Service) PrepareAction(ctx context.Context, action *advisor.Action) (*Preview, error) {
	if action == nil {
		return nil, ErrNoChanges
	}
	if len(action.Changes) == 0 {
		preview := &Preview{Action: action.Clone(), Note: analysisNote(action)}
		if action.Type == advisor.ActionAnalysis {
			msg, err := s.PushInsight(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("⚠️ Follow-up insight failed")
			}
			preview.Insight = msg
		}
		return preview, nil
	}
	p, err := s.portfolio.Propose(ctx, action.Changes)
	if err != nil {
		return nil, err
	}
	out := action.Clone()
	out.Changes = p.Changes
	return &Preview{Action: out, Proposal: p}, nil
}

// ApplyAction reconciles the action and commits it. An unbalanced result is
// left pending and returned with allocation.ErrTotalNot100.
func (s *Service) ApplyAction(ctx context.Context, action *advisor.Action) (*portfolio.Proposal, error) {
	if action == nil || len(action.Changes) == 0 {
		return nil, ErrNoChanges
	}
	p, err := s.portfolio.ApplyChanges(ctx, action.Changes, "chat_action")
	if err != nil {
		return p, err
	}
	log.Info().Str("type", action.Type).Int("changes", len(p.Changes)).Msg("✅ Chat action applied")
	return p, nil
}

func analysisNote(a *advisor.Action) string {
	if a.Description != "" {
		return a.Description + ". No allocation changes are needed."
	}
	return "This suggestion does not change your allocation."
}

// ---- persistence ----

func (s *Service) ensureWelcome() error {
	msgs, err := s.store.GetChatMessages(1)
	if err != nil {
		return fmt.Errorf("read chat: %w", err)
	}
	if len(msgs) > 0 {
		return nil
	}
	_, err = s.save(SenderAI, welcomeText, SourceWelcome, nil)
	return err
}

func (s *Service) load(limit int) ([]Message, error) {
	recs, err := s.store.GetChatMessages(limit)
	if err != nil {
		return nil, fmt.Errorf("read chat: %w", err)
	}
	out := make([]Message, 0, len(recs))
	for _, r := range recs {
		m, err := fromRecord(r)
		if err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("skip unreadable chat message")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) save(sender, content, source string, action *advisor.Action) (*Message, error) {
	m := Message{
		ID:        s.newID(),
		Sender:    sender,
		Content:   content,
		Source:    source,
		Action:    action,
		CreatedAt: s.now().UTC(),
	}
	rec := db.ChatMessage{
		ID:        m.ID,
		Sender:    m.Sender,
		Content:   m.Content,
		Source:    m.Source,
		CreatedAt: m.CreatedAt,
	}
	if action != nil {
		b, err := json.Marshal(action)
		if err != nil {
			return nil, err
		}
		rec.ActionJSON = string(b)
	}
	if err := s.store.InsertChatMessage(rec); err != nil {
		return nil, fmt.Errorf("save chat message: %w", err)
	}
	return &m, nil
}

func fromRecord(r db.ChatMessage) (Message, error) {
	m := Message{
		ID:        r.ID,
		Sender:    r.Sender,
		Content:   r.Content,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
	}
	if r.ActionJSON != "" {
		var a advisor.Action
		if err := json.Unmarshal([]byte(r.ActionJSON), &a); err != nil {
			return m, fmt.Errorf("decode action: %w", err)
		}
		m.Action = &a
	}
	return m, nil
}
