package service_test

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/AnzeMiles69/pet-chat/internal/notice"
	"github.com/AnzeMiles69/pet-chat/internal/service"
	"github.com/AnzeMiles69/pet-chat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	tc    *testutil.TestClient
	chats *service.ChatService
	board *notice.Board
	alice *domain.User
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	tc := testutil.NewTestClient(t)
	alice, password := testutil.NewUserBuilder().WithUsername("alice").Build(t, tc.API)
	tc.LoginAs(t, alice.Username, password)

	board := notice.NewBoard()
	return &chatFixture{
		tc:    tc,
		chats: service.NewChatService(tc.Client, board, tc.Config.ParticipantConcurrency),
		board: board,
		alice: alice,
	}
}

func TestChatService_LoadChats(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	testutil.NewChatBuilder(f.alice).WithName("general").Build(f.tc.API)
	testutil.NewChatBuilder(f.alice).WithName("random").Build(f.tc.API)

	require.NoError(t, f.chats.LoadChats(ctx))
	testutil.AssertChatNames(t, f.chats.Chats(), "general", "random")

	// reloading replaces, never merges
	require.NoError(t, f.chats.LoadChats(ctx))
	testutil.AssertChatNames(t, f.chats.Chats(), "general", "random")
}

func TestChatService_LoadChatsFollowsRedirect(t *testing.T) {
	f := newChatFixture(t)
	testutil.NewChatBuilder(f.alice).WithName("general").Build(f.tc.API)
	f.tc.API.RedirectOnce("/chats", f.tc.API.APIURL("/chats/"))

	require.NoError(t, f.chats.LoadChats(context.Background()))
	testutil.AssertChatNames(t, f.chats.Chats(), "general")
	assert.Equal(t, 1, f.tc.API.CallCount(http.MethodGet, "/chats"))
	assert.Equal(t, 1, f.tc.API.CallCount(http.MethodGet, "/chats/"))
}

func TestChatService_SelectChatLoadsMessages(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat := testutil.NewChatBuilder(f.alice).WithMessages("hi", "there").Build(f.tc.API)

	require.NoError(t, f.chats.SelectChat(ctx, *chat))

	active, ok := f.chats.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, chat.ID, active.ID)
	testutil.AssertMessageContents(t, f.chats.Messages(), "hi", "there")
	assert.Equal(t, "alice", f.chats.Messages()[0].SenderUsername)
}

func TestChatService_StaleMessagesNeverOverwriteNewerSelection(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chatA := testutil.NewChatBuilder(f.alice).WithName("A").WithMessages("from A").Build(f.tc.API)
	chatB := testutil.NewChatBuilder(f.alice).WithName("B").WithMessages("from B").Build(f.tc.API)

	release := f.tc.API.HoldMessages(chatA.ID)
	t.Cleanup(release)

	errA := make(chan error, 1)
	go func() {
		errA <- f.chats.SelectChat(ctx, *chatA)
	}()

	require.Eventually(t, func() bool {
		return f.tc.API.CallCount(http.MethodGet, messagesPath(chatA.ID)) > 0
	}, 2*time.Second, 5*time.Millisecond)

	// A's response is still held: selecting B must not wait for it.
	errB := make(chan error, 1)
	go func() {
		errB <- f.chats.SelectChat(ctx, *chatB)
	}()

	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("selecting B blocked behind A's in-flight fetch")
	}

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, service.ErrSuperseded)
	case <-time.After(3 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	release()

	active, ok := f.chats.ActiveChat()
	require.True(t, ok)
	assert.Equal(t, chatB.ID, active.ID)
	testutil.AssertMessageContents(t, f.chats.Messages(), "from B")
}

func TestChatService_LeaveDiscardsInFlightFetch(t *testing.T) {
	f := newChatFixture(t)
	chat := testutil.NewChatBuilder(f.alice).WithMessages("late").Build(f.tc.API)

	release := f.tc.API.HoldMessages(chat.ID)
	t.Cleanup(release)

	done := make(chan error, 1)
	go func() {
		done <- f.chats.SelectChat(context.Background(), *chat)
	}()

	require.Eventually(t, func() bool {
		return f.tc.API.CallCount(http.MethodGet, messagesPath(chat.ID)) > 0
	}, 2*time.Second, 5*time.Millisecond)

	f.chats.Leave()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, service.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was not abandoned")
	}
	assert.Empty(t, f.chats.Messages())
}

func TestChatService_SendMessage(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	chat := testutil.NewChatBuilder(f.alice).WithMessages("first").Build(f.tc.API)

	require.NoError(t, f.chats.SelectChat(ctx, *chat))
	f.chats.SetCompose("second")

	require.NoError(t, f.chats.SendCompose(ctx))

	assert.Empty(t, f.chats.ComposeBuffer())
	testutil.AssertMessageContents(t, f.chats.Messages(), "first", "second")
	assert.Equal(t, 2, f.tc.API.CallCount(http.MethodGet, messagesPath(chat.ID)))
}

func TestChatService_SendMessageRejectedLocally(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		selectChat bool
		wantErr    error
	}{
		{name: "whitespace only", content: " \t\n ", selectChat: true, wantErr: domain.ErrEmptyMessage},
		{name: "empty", content: "", selectChat: true, wantErr: domain.ErrEmptyMessage},
		{name: "no active chat", content: "hello", wantErr: domain.ErrNoActiveChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			ctx := context.Background()
			if tt.selectChat {
				chat := testutil.NewChatBuilder(f.alice).Build(f.tc.API)
				require.NoError(t, f.chats.SelectChat(ctx, *chat))
			}
			f.chats.SetCompose(tt.content)

			err := f.chats.SendMessage(ctx, tt.content)

			assert.ErrorIs(t, err, tt.wantErr)
			testutil.AssertNoCalls(t, f.tc.API, http.MethodPost, "/messages")
			assert.Equal(t, tt.content, f.chats.ComposeBuffer())
		})
	}
}

func TestChatService_SendFailureKeepsCompose(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	chat := testutil.NewChatBuilder(f.alice).Build(f.tc.API)
	require.NoError(t, f.chats.SelectChat(ctx, *chat))

	f.chats.SetCompose("retry me")
	f.tc.API.FailNext(http.MethodPost, "/messages", 1)

	assert.Error(t, f.chats.SendCompose(ctx))
	assert.Equal(t, "retry me", f.chats.ComposeBuffer())
	n, ok := f.board.Current(notice.AreaChats)
	require.True(t, ok)
	assert.Equal(t, notice.Error, n.Kind)
}

func TestCanCreateChat(t *testing.T) {
	tests := []struct {
		name    string
		input   service.CreateChatInput
		wantErr error
	}{
		{name: "direct with one counterpart", input: service.CreateChatInput{ParticipantIDs: []int64{2}}},
		{name: "direct without counterpart", input: service.CreateChatInput{}, wantErr: domain.ErrSingleCounterpart},
		{name: "direct with two counterparts", input: service.CreateChatInput{ParticipantIDs: []int64{2, 3}}, wantErr: domain.ErrSingleCounterpart},
		{name: "group with name and members", input: service.CreateChatInput{Name: "team", IsGroup: true, ParticipantIDs: []int64{2}}},
		{name: "group with blank name", input: service.CreateChatInput{Name: "  ", IsGroup: true, ParticipantIDs: []int64{2}}, wantErr: domain.ErrEmptyChatName},
		{name: "group without members", input: service.CreateChatInput{Name: "team", IsGroup: true}, wantErr: domain.ErrNoParticipants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.ValidateCreateChat(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, service.CanCreateChat(tt.input))
				return
			}
			assert.NoError(t, err)
			assert.True(t, service.CanCreateChat(tt.input))
		})
	}
}

func TestChatService_CreateGroupChat(t *testing.T) {
	f := newChatFixture(t)
	bob, _ := testutil.NewUserBuilder().WithUsername("bob").Build(t, f.tc.API)
	carol, _ := testutil.NewUserBuilder().WithUsername("carol").Build(t, f.tc.API)

	result, err := f.chats.CreateChat(context.Background(), service.CreateChatInput{
		Name:           "team",
		IsGroup:        true,
		ParticipantIDs: []int64{bob.ID, carol.ID},
	})

	require.NoError(t, err)
	assert.False(t, result.Partial())
	assert.ElementsMatch(t, []int64{f.alice.ID, bob.ID, carol.ID}, f.tc.API.Participants(result.Chat.ID))
	testutil.AssertChatNames(t, f.chats.Chats(), "team")
	_, shown := f.board.Current(notice.AreaCreateChat)
	assert.False(t, shown)
}

func TestChatService_CreateDirectChatAddsCounterpart(t *testing.T) {
	f := newChatFixture(t)
	bob, _ := testutil.NewUserBuilder().WithUsername("bob").Build(t, f.tc.API)

	result, err := f.chats.CreateChat(context.Background(), service.CreateChatInput{
		ParticipantIDs: []int64{bob.ID},
	})

	require.NoError(t, err)
	assert.False(t, result.Chat.IsGroup)
	assert.ElementsMatch(t, []int64{f.alice.ID, bob.ID}, f.tc.API.Participants(result.Chat.ID))
}

func TestChatService_CreateChatPartialFailure(t *testing.T) {
	f := newChatFixture(t)
	bob, _ := testutil.NewUserBuilder().WithUsername("bob").Build(t, f.tc.API)
	carol, _ := testutil.NewUserBuilder().WithUsername("carol").Build(t, f.tc.API)
	f.tc.API.FailParticipantAdds(carol.ID, http.StatusInternalServerError)

	result, err := f.chats.CreateChat(context.Background(), service.CreateChatInput{
		Name:           "team",
		IsGroup:        true,
		ParticipantIDs: []int64{bob.ID, carol.ID},
	})

	require.NoError(t, err)
	require.True(t, result.Partial())
	failed := result.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, carol.ID, failed[0].UserID)

	// the chat is not rolled back
	assert.Equal(t, 1, f.tc.API.ChatCount())
	assert.ElementsMatch(t, []int64{f.alice.ID, bob.ID}, f.tc.API.Participants(result.Chat.ID))

	n, ok := f.board.Current(notice.AreaCreateChat)
	require.True(t, ok)
	assert.Equal(t, notice.Warning, n.Kind)
	assert.Contains(t, n.Text, "1 of 2")
}

func TestChatService_CreateChatInvalidSendsNothing(t *testing.T) {
	f := newChatFixture(t)
	before := len(f.tc.API.Calls())

	_, err := f.chats.CreateChat(context.Background(), service.CreateChatInput{IsGroup: true, Name: "team"})

	assert.ErrorIs(t, err, domain.ErrNoParticipants)
	testutil.AssertNoTraffic(t, f.tc.API, before)
}

func TestChatService_ExpiredSessionClearsCredential(t *testing.T) {
	f := newChatFixture(t)
	f.tc.API.RevokeTokens()

	err := f.chats.LoadChats(context.Background())

	require.Error(t, err)
	assert.False(t, f.tc.Session.IsAuthenticated())
	n, ok := f.board.Current(notice.AreaChats)
	require.True(t, ok)
	assert.Contains(t, n.Text, "log in again")
}

func TestChatService_ResetDropsState(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	chat := testutil.NewChatBuilder(f.alice).WithMessages("hi").Build(f.tc.API)

	require.NoError(t, f.chats.LoadChats(ctx))
	require.NoError(t, f.chats.SelectChat(ctx, *chat))
	f.chats.SetCompose("draft")

	f.chats.Reset()

	assert.Empty(t, f.chats.Chats())
	assert.Empty(t, f.chats.Messages())
	assert.Empty(t, f.chats.ComposeBuffer())
	_, ok := f.chats.ActiveChat()
	assert.False(t, ok)
}

func messagesPath(chatID int64) string {
	return "/messages/chat/" + strconv.FormatInt(chatID, 10)
}
