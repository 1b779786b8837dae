package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/domain"
	clog "github.com/AnzeMiles69/pet-chat/internal/log"
	"github.com/AnzeMiles69/pet-chat/internal/metrics"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ChatService owns the chat list and the active chat's messages. All state
// is a read-through cache of the server: nothing is merged, sorted or
// appended locally.
type ChatService struct {
	client      *api.Client
	board       *notice.Board
	concurrency int
	logger      zerolog.Logger

	mu       sync.Mutex
	chats    []domain.Chat
	active   *domain.Chat
	messages []domain.Message
	compose  string

	// chatsGen and messagesGen tag in-flight fetches; a result is applied
	// only if its tag is still current when it lands.
	chatsGen       uint64
	messagesGen    uint64
	cancelMessages func()

	nextFetch uint64
	inflight  map[uint64]context.CancelFunc
}

func NewChatService(client *api.Client, board *notice.Board, concurrency int) *ChatService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ChatService{
		client:      client,
		board:       board,
		concurrency: concurrency,
		logger:      clog.Component("chats"),
		inflight:    make(map[uint64]context.CancelFunc),
	}
}

// track derives a cancellable context for one fetch so Leave can abandon it.
// The returned func releases it and is safe to call more than once.
func (s *ChatService) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.nextFetch++
	id := s.nextFetch
	s.inflight[id] = cancel
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		s.mu.Unlock()
		cancel()
	}
}

func (s *ChatService) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Chat(nil), s.chats...)
}

func (s *ChatService) ActiveChat() (domain.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return domain.Chat{}, false
	}
	return *s.active, true
}

func (s *ChatService) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages...)
}

func (s *ChatService) ComposeBuffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose
}

func (s *ChatService) SetCompose(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compose = text
}

// LoadChats replaces the chat list wholesale with the server's.
func (s *ChatService) LoadChats(ctx context.Context) error {
	ctx, done := s.track(ctx)
	defer done()

	s.mu.Lock()
	s.chatsGen++
	gen := s.chatsGen
	s.mu.Unlock()

	chats, err := s.client.ListChats(ctx)

	s.mu.Lock()
	if gen != s.chatsGen {
		s.mu.Unlock()
		metrics.StaleFetchesDiscarded.Inc()
		return ErrSuperseded
	}
	if err == nil {
		s.chats = chats
	}
	s.mu.Unlock()

	if err != nil {
		s.fail(notice.AreaChats, "failed to load chats", err)
		return err
	}
	return nil
}

// SelectChat makes chat active, clears the message list and fetches the
// chat's messages. Selecting again before the fetch lands cancels it, and
// its result is dropped with ErrSuperseded.
func (s *ChatService) SelectChat(ctx context.Context, chat domain.Chat) error {
	s.mu.Lock()
	selected := chat
	s.active = &selected
	s.messages = nil
	s.mu.Unlock()

	return s.fetchMessages(ctx, chat.ID)
}

// RefreshMessages re-fetches the active chat's messages in full.
func (s *ChatService) RefreshMessages(ctx context.Context) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return domain.ErrNoActiveChat
	}
	return s.fetchMessages(ctx, active.ID)
}

func (s *ChatService) fetchMessages(ctx context.Context, chatID int64) error {
	ctx, done := s.track(ctx)
	defer done()

	s.mu.Lock()
	prev := s.cancelMessages
	s.messagesGen++
	gen := s.messagesGen
	s.cancelMessages = done
	s.mu.Unlock()

	// done takes s.mu, so the superseded fetch is cancelled after unlocking.
	if prev != nil {
		prev()
	}

	messages, err := s.client.ListMessages(ctx, chatID)

	s.mu.Lock()
	if gen != s.messagesGen || s.active == nil || s.active.ID != chatID {
		s.mu.Unlock()
		metrics.StaleFetchesDiscarded.Inc()
		s.logger.Debug().Int64("chat_id", chatID).Msg("discarded stale message fetch")
		return ErrSuperseded
	}
	if err == nil {
		s.messages = messages
	}
	s.cancelMessages = nil
	s.mu.Unlock()

	if err != nil {
		s.fail(notice.AreaChats, "failed to load messages", err)
		return err
	}
	return nil
}

// SendMessage posts content to the active chat. Blank content or no active
// chat fails before any request. On success the compose buffer is cleared
// and the whole message list is re-fetched.
func (s *ChatService) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active == nil {
		return domain.ErrNoActiveChat
	}
	if domain.Blank(content) {
		return domain.ErrEmptyMessage
	}

	if _, err := s.client.SendMessage(ctx, api.SendMessageRequest{Content: content, ChatID: active.ID}); err != nil {
		s.fail(notice.AreaChats, "failed to send message", err)
		return err
	}

	s.SetCompose("")
	return s.RefreshMessages(ctx)
}

// SendCompose sends the current compose buffer.
func (s *ChatService) SendCompose(ctx context.Context) error {
	return s.SendMessage(ctx, s.ComposeBuffer())
}

type CreateChatInput struct {
	Name           string
	IsGroup        bool
	ParticipantIDs []int64
}

// ValidateCreateChat checks the creation rules: a direct chat needs exactly
// one counterpart; a group needs a name and at least one participant.
func ValidateCreateChat(input CreateChatInput) error {
	if !input.IsGroup {
		if len(input.ParticipantIDs) != 1 {
			return domain.ErrSingleCounterpart
		}
		return nil
	}
	if domain.Blank(input.Name) {
		return domain.ErrEmptyChatName
	}
	if len(input.ParticipantIDs) == 0 {
		return domain.ErrNoParticipants
	}
	return nil
}

// CanCreateChat reports whether the create action should be enabled.
func CanCreateChat(input CreateChatInput) bool {
	return ValidateCreateChat(input) == nil
}

type ParticipantResult struct {
	UserID int64
	Err    error
}

type CreateChatResult struct {
	Chat         *domain.Chat
	Participants []ParticipantResult
}

func (r *CreateChatResult) Failed() []ParticipantResult {
	var failed []ParticipantResult
	for _, p := range r.Participants {
		if p.Err != nil {
			failed = append(failed, p)
		}
	}
	return failed
}

// Partial reports whether the chat exists with only some of the requested
// members.
func (r *CreateChatResult) Partial() bool {
	return len(r.Failed()) > 0
}

func (r *CreateChatResult) Warning() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return ""
	}
	ids := make([]string, 0, len(failed))
	for _, p := range failed {
		ids = append(ids, fmt.Sprint(p.UserID))
	}
	return fmt.Sprintf("chat %q was created, but %d of %d participants could not be added (users %s)",
		r.Chat.Name, len(failed), len(r.Participants), strings.Join(ids, ", "))
}

// CreateChat creates the chat and then adds its members concurrently. A
// failed add does not roll the chat back; the per-member outcome is in the
// result. The error is non-nil only when nothing was created.
func (s *ChatService) CreateChat(ctx context.Context, input CreateChatInput) (*CreateChatResult, error) {
	s.board.Dismiss(notice.AreaCreateChat)

	if err := ValidateCreateChat(input); err != nil {
		s.board.Show(notice.AreaCreateChat, notice.Error, err.Error())
		return nil, err
	}

	chat, err := s.client.CreateChat(ctx, api.CreateChatRequest{Name: input.Name, IsGroup: input.IsGroup})
	if err != nil {
		s.fail(notice.AreaCreateChat, "failed to create chat", err)
		return nil, err
	}

	result := &CreateChatResult{
		Chat:         chat,
		Participants: s.addParticipants(ctx, chat.ID, input.ParticipantIDs),
	}

	if result.Partial() {
		metrics.ParticipantAddFailures.Add(float64(len(result.Failed())))
		s.logger.Warn().Int64("chat_id", chat.ID).Int("failed", len(result.Failed())).Msg("chat created with partial membership")
		s.board.Show(notice.AreaCreateChat, notice.Warning, result.Warning())
	}

	if err := s.LoadChats(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.Error().Err(err).Msg("failed to refresh chats after create")
	}

	return result, nil
}

func (s *ChatService) addParticipants(ctx context.Context, chatID int64, userIDs []int64) []ParticipantResult {
	results := make([]ParticipantResult, len(userIDs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, userID := range userIDs {
		i, userID := i, userID
		g.Go(func() error {
			results[i] = ParticipantResult{
				UserID: userID,
				Err:    s.client.AddParticipant(ctx, chatID, userID),
			}
			return nil
		})
	}
	g.Wait()

	return results
}

// Leave abandons every outstanding fetch, e.g. when the view is closed.
// Results that still arrive are discarded.
func (s *ChatService) Leave() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.inflight))
	for _, cancel := range s.inflight {
		cancels = append(cancels, cancel)
	}
	s.chatsGen++
	s.messagesGen++
	s.cancelMessages = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Reset abandons outstanding fetches and drops every cached collection.
func (s *ChatService) Reset() {
	s.Leave()

	s.mu.Lock()
	s.chats = nil
	s.active = nil
	s.messages = nil
	s.compose = ""
	s.mu.Unlock()
}

func (s *ChatService) fail(area, what string, err error) {
	s.logger.Error().Err(err).Msg(what)
	s.board.Show(area, notice.Error, userMessage(what, err))
}

// userMessage turns err into the text shown next to the failing control.
func userMessage(what string, err error) string {
	if api.IsUnauthorized(err) {
		return "your session has expired, please log in again"
	}
	if detail := api.DetailOf(err); detail != "" {
		return what + ": " + detail
	}
	return what
}
