package chat

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vitalpath/coach-gateway/internal/ai"
	"github.com/vitalpath/coach-gateway/internal/analytics"
	"github.com/vitalpath/coach-gateway/internal/apperr"
	"github.com/vitalpath/coach-gateway/internal/common"
	"github.com/vitalpath/coach-gateway/internal/ratelimit"
	"github.com/vitalpath/coach-gateway/internal/scope"
	"github.com/vitalpath/coach-gateway/internal/usercontext"
)

// Options carry the pipeline tuning knobs, injected once at process start.
type Options struct {
	Provider          string
	Model             string
	ContextWindowSize int
	ModelTimeout      time.Duration
	MaxMessageLen     int
	MaxTokens         int
	Temperature       float32
}

func (o *Options) withDefaults() {
	if o.ContextWindowSize <= 0 || o.ContextWindowSize > 100 {
		o.ContextWindowSize = 10
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = 7 * time.Second
	}
	if o.MaxMessageLen <= 0 {
		o.MaxMessageLen = 500
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 350
	}
}

// Service runs the chat pipeline: scope check, admission, session bookkeeping,
// context read-through, the timeout-raced model call with its fallback, reply
// classification and analytics.
type Service struct {
	repo       *Repo
	registry   *ai.Registry
	classifier *scope.Classifier
	limiter    *ratelimit.Limiter
	contexts   *usercontext.Service
	analytics  *analytics.Repo
	opts       Options
}

func NewService(
	repo *Repo,
	registry *ai.Registry,
	classifier *scope.Classifier,
	limiter *ratelimit.Limiter,
	contexts *usercontext.Service,
	analyticsRepo *analytics.Repo,
	opts Options,
) *Service {
	opts.withDefaults()
	return &Service{
		repo:       repo,
		registry:   registry,
		classifier: classifier,
		limiter:    limiter,
		contexts:   contexts,
		analytics:  analyticsRepo,
		opts:       opts,
	}
}

// SendResult is the caller-visible outcome of one chat turn.
type SendResult struct {
	SessionID      string
	Reply          string
	Type           scope.ReplyType
	TokensUsed     int
	ResponseTimeMs int64
	WasFallback    bool
	WasFromCache   bool
}

// Send runs the whole pipeline for one synchronous turn.
func (s *Service) Send(ctx context.Context, userID uint64, sessionID, content string) (*SendResult, error) {
	start := time.Now()

	sess, rejected, err := s.PrepareTurn(ctx, userID, sessionID, content)
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return rejected, nil
	}

	result, _, err := s.CompleteTurn(ctx, sess.UserID, sess.SessionID, content, start)
	return result, err
}

// PrepareTurn runs the admission half: validation, scope check, rate limit,
// session resume-or-create and persisting the user's message. A non-nil
// rejected result means the turn was answered by the canned out-of-scope
// reply and nothing further should run.
func (s *Service) PrepareTurn(ctx context.Context, userID uint64, sessionID, content string) (*Session, *SendResult, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return nil, nil, apperr.New(apperr.InvalidArgument, "message is empty")
	}
	if n > s.opts.MaxMessageLen {
		return nil, nil, apperr.New(apperr.InvalidArgument, "message too long")
	}

	cls := s.classifier.Classify(content)
	if s.classifier.ShouldReject(cls) {
		return s.rejectTurn(ctx, userID, sessionID, content, cls)
	}
	if cls.Confidence <= 0.4 {
		// suspicious but forwarded: the model gets the benefit of the doubt
		log.Printf("chat: low-confidence accept user=%d reason=%s confidence=%.2f", userID, cls.Reason, cls.Confidence)
	}

	// admission consumes exactly one quota unit per accepted call
	dec, err := s.limiter.Admit(ctx, userID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "rate limit check failed", err)
	}
	if !dec.Allowed {
		return nil, nil, apperr.RateLimited("message quota exceeded", dec.RetryAfter.Milliseconds())
	}

	sess, err := s.resumeOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.InsertMessage(ctx, &Message{
		SessionID: sess.SessionID,
		UserID:    userID,
		Role:      "user",
		Content:   content,
	}); err != nil {
		return nil, nil, apperr.FromStore("persist user message", err)
	}

	return sess, nil, nil
}

// rejectTurn is the fast path: the canned reply is persisted and audited, no
// quota is consumed and no model call happens.
func (s *Service) rejectTurn(ctx context.Context, userID uint64, sessionID, content string, cls scope.Result) (*Session, *SendResult, error) {
	sess, err := s.resumeOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.InsertMessage(ctx, &Message{
		SessionID: sess.SessionID, UserID: userID, Role: "user", Content: content,
	}); err != nil {
		return nil, nil, apperr.FromStore("persist user message", err)
	}
	if err := s.repo.InsertMessage(ctx, &Message{
		SessionID: sess.SessionID, UserID: userID, Role: "assistant", Content: OutOfScopeReply,
	}); err != nil {
		return nil, nil, apperr.FromStore("persist canned reply", err)
	}

	if err := s.analytics.RecordRejection(ctx, userID, content, cls.Reason, cls.Confidence); err != nil {
		log.Printf("chat: out-of-scope audit failed user=%d err=%v", userID, err)
	}
	log.Printf("chat: out-of-scope user=%d reason=%s confidence=%.2f", userID, cls.Reason, cls.Confidence)

	return sess, &SendResult{
		SessionID: sess.SessionID,
		Reply:     OutOfScopeReply,
		Type:      scope.ReplyNormal,
	}, nil
}

// CompleteTurn runs the generation half after the user message is persisted:
// context read-through, model call with fallback, reply classification,
// assistant persistence and analytics. start anchors the reported latency.
func (s *Service) CompleteTurn(ctx context.Context, userID uint64, sessionID, userMessage string, start time.Time) (*SendResult, uint64, error) {
	summary, fromCache, err := s.contexts.Summary(ctx, userID)
	if err != nil {
		// missing context degrades the prompt, it does not fail the turn
		log.Printf("chat: context summary failed user=%d err=%v", userID, err)
		summary = usercontext.Summary{}
		fromCache = false
	}

	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.opts.ContextWindowSize)
	if err != nil {
		return nil, 0, apperr.FromStore("load history", err)
	}
	history := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}

	reply, replyType, tokens, usedFallback, hadError := s.generate(ctx, userMessage, summary, history)

	responseMs := time.Since(start).Milliseconds()

	assistantMsg := &Message{
		SessionID:      sessionID,
		UserID:         userID,
		Role:           "assistant",
		Content:        reply,
		TokensUsed:     tokens,
		ResponseTimeMs: responseMs,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, 0, apperr.FromStore("persist assistant message", err)
	}

	if err := s.analytics.Record(ctx, analytics.Sample{
		UserID:       userID,
		ResponseMs:   responseMs,
		TokensUsed:   tokens,
		HadError:     hadError,
		UsedFallback: usedFallback,
	}); err != nil {
		log.Printf("chat: analytics record failed user=%d err=%v", userID, err)
	}

	return &SendResult{
		SessionID:      sessionID,
		Reply:          reply,
		Type:           replyType,
		TokensUsed:     tokens,
		ResponseTimeMs: responseMs,
		WasFallback:    usedFallback,
		WasFromCache:   fromCache,
	}, assistantMsg.ID, nil
}

// generate races the model call against the model deadline. The losing branch
// is cancelled via the context; a failed or timed-out call is absorbed into
// the deterministic fallback and never surfaces as an error.
func (s *Service) generate(ctx context.Context, userMessage string, sum usercontext.Summary, history []ai.Message) (reply string, t scope.ReplyType, tokens int, usedFallback, hadError bool) {
	provider, err := s.registry.Get(ctx, s.opts.Provider, s.opts.Model)
	if err != nil {
		log.Printf("chat: provider lookup failed provider=%s err=%v", s.opts.Provider, err)
		return BuildFallbackReply(sum), s.classifier.ClassifyFallback(userMessage), 0, true, true
	}

	mctx, cancel := context.WithTimeout(ctx, s.opts.ModelTimeout)
	defer cancel()

	res, err := provider.Chat(mctx, ai.Request{
		System:      BuildSystemPrompt(sum),
		Messages:    history,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		log.Printf("chat: model call failed provider=%s err=%v", s.opts.Provider, err)
		return BuildFallbackReply(sum), s.classifier.ClassifyFallback(userMessage), 0, true, true
	}

	return res.Content, s.classifier.ClassifyReply(res.Content), res.TokensUsed, false, false
}

func (s *Service) resumeOrCreate(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	if sessionID == "" {
		sid, err := common.NewULID()
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "mint session id", err)
		}
		sess := &Session{SessionID: sid, UserID: userID, IsActive: true}
		if err := s.repo.CreateSession(ctx, sess); err != nil {
			return nil, apperr.FromStore("create session", err)
		}
		return sess, nil
	}

	return s.ownedSession(ctx, userID, sessionID)
}

// History returns the last N messages in oldest-first order.
func (s *Service) History(ctx context.Context, userID uint64, sessionID string) ([]Message, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	desc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.opts.ContextWindowSize)
	if err != nil {
		return nil, apperr.FromStore("load history", err)
	}
	out := make([]Message, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		out = append(out, desc[i])
	}
	return out, nil
}

func (s *Service) ownedSession(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperr.FromStore("load session", err)
	}
	if sess.UserID != userID {
		// hide existence of other users' sessions
		return nil, apperr.New(apperr.NotFound, "session not found")
	}
	return sess, nil
}

// ListMessages pages through the durable log, newest first.
func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	msgs, err := s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
	if err != nil {
		return nil, apperr.FromStore("list messages", err)
	}
	return msgs, nil
}

func (s *Service) CreateJob(ctx context.Context, job *Job) error {
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return apperr.FromStore("create job", err)
	}
	return nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, apperr.FromStore("load job", err)
	}
	return j, nil
}
