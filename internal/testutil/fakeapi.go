package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const fakeJWTSecret = "test-jwt-secret-key-for-testing-only"

// Call records one request received by the fake API.
type Call struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	RequestID     string
}

type fakeUser struct {
	domain.User
	passwordHash []byte
}

// FakeAPI is an in-process stand-in for the chat service, speaking the same
// wire format under /api/v1.
type FakeAPI struct {
	Server *httptest.Server

	mu           sync.Mutex
	users        map[int64]*fakeUser
	chats        []*domain.Chat
	participants map[int64]map[int64]bool
	messages     map[int64][]domain.Message
	nextID       int64
	tokenVersion int
	calls        []Call
	redirects    map[string]string
	failAdds     map[int64]int
	failures     map[string]int
	messageGates map[int64]chan struct{}
	backup       []byte
	restored     []byte
	restoredName string
	clock        time.Time
}

// NewFakeAPI starts a fake chat service seeded with one administrator
// (admin / adminpass123).
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		users:        make(map[int64]*fakeUser),
		participants: make(map[int64]map[int64]bool),
		messages:     make(map[int64][]domain.Message),
		redirects:    make(map[string]string),
		failAdds:     make(map[int64]int),
		failures:     make(map[string]int),
		messageGates: make(map[int64]chan struct{}),
		backup:       []byte("-- chat database dump\n"),
		clock:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.AddUser(t, "admin", "admin@example.com", "adminpass123", domain.RoleAdmin)

	f.Server = httptest.NewServer(f.router())
	t.Cleanup(func() {
		f.releaseGates()
		f.Server.Close()
	})

	return f
}

// URL is the service root to hand to api.New.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// APIURL returns the full API URL for a given path.
func (f *FakeAPI) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", f.Server.URL, path)
}

func (f *FakeAPI) router() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(f.redirect)
		r.Use(f.injectFailure)

		r.Post("/auth/login", f.login)
		r.Post("/auth/register", f.register)

		r.Group(func(r chi.Router) {
			r.Use(f.auth)

			r.Get("/users/me", f.me)
			r.Get("/users", f.adminOnly(f.listUsers))

			r.Get("/chats", f.listChats)
			// trailing-slash form the real service redirects to
			r.Get("/chats/", f.listChats)
			r.Post("/chats", f.createChat)
			r.Post("/chats/{id}/participants", f.addParticipant)

			r.Get("/messages/chat/{id}", f.listMessages)
			r.Post("/messages", f.sendMessage)

			r.Post("/admin/backup", f.adminOnly(f.createBackup))
			r.Post("/admin/restore", f.adminOnly(f.restoreBackup))
			r.Post("/admin/reset", f.adminOnly(f.resetDatabase))
		})
	})

	return r
}

// --- test controls ---

// AddUser creates an account directly, bypassing the API.
func (f *FakeAPI) AddUser(t *testing.T, username, email, password string, role domain.Role) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.insertUserLocked(username, email, role, hash)
	copied := u.User
	return &copied
}

// AddChat creates a chat directly with the given members.
func (f *FakeAPI) AddChat(name string, isGroup bool, creatorID int64, memberIDs ...int64) *domain.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()

	chat := f.insertChatLocked(name, isGroup, creatorID)
	for _, id := range memberIDs {
		f.participants[chat.ID][id] = true
	}
	copied := *chat
	return &copied
}

// AddMessage appends a message directly.
func (f *FakeAPI) AddMessage(chatID, senderID int64, content string) domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertMessageLocked(chatID, senderID, content)
}

// RedirectOnce makes the next GET of path answer 307 with Location set to
// location.
func (f *FakeAPI) RedirectOnce(path, location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects["/api/v1"+path] = location
}

// FailNext makes the next n requests to method+path fail with status 500.
func (f *FakeAPI) FailNext(method, path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" /api/v1"+path] = n
}

// FailParticipantAdds makes adding userID to any chat fail with status.
func (f *FakeAPI) FailParticipantAdds(userID int64, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAdds[userID] = status
}

// HoldMessages blocks GET /messages/chat/{chatID} until the returned func is
// called or the client goes away.
func (f *FakeAPI) HoldMessages(chatID int64) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.messageGates[chatID] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.messageGates[chatID] == gate {
				delete(f.messageGates, chatID)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// RevokeTokens invalidates every token issued so far.
func (f *FakeAPI) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenVersion++
}

// SetBackup sets the payload served by /admin/backup.
func (f *FakeAPI) SetBackup(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backup = data
}

// Restored returns the last uploaded restore file and its name.
func (f *FakeAPI) Restored() ([]byte, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restored, f.restoredName
}

// Calls returns every request received, in order.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount counts requests matching method and path (path without /api/v1).
func (f *FakeAPI) CallCount(method, path string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method && c.Path == "/api/v1"+path {
			n++
		}
	}
	return n
}

// ChatCount returns how many chats exist server-side.
func (f *FakeAPI) ChatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats)
}

// Participants returns the member ids of chatID.
func (f *FakeAPI) Participants(chatID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.participants[chatID] {
		ids = append(ids, id)
	}
	return ids
}

// TokenFor mints a valid token for userID without going through login.
func (f *FakeAPI) TokenFor(t *testing.T, userID int64) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	token, err := f.issueTokenLocked(userID)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// --- internals ---

func (f *FakeAPI) insertUserLocked(username, email string, role domain.Role, hash []byte) *fakeUser {
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	u := &fakeUser{
		User: domain.User{
			ID:        f.nextID,
			Username:  username,
			Email:     email,
			Role:      role,
			Active:    true,
			CreatedAt: f.clock,
		},
		passwordHash: hash,
	}
	f.users[u.ID] = u
	return u
}

func (f *FakeAPI) insertChatLocked(name string, isGroup bool, creatorID int64) *domain.Chat {
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	chat := &domain.Chat{
		ID:        f.nextID,
		Name:      name,
		IsGroup:   isGroup,
		CreatorID: creatorID,
		CreatedAt: f.clock,
	}
	f.chats = append(f.chats, chat)
	f.participants[chat.ID] = map[int64]bool{creatorID: true}
	return chat
}

func (f *FakeAPI) insertMessageLocked(chatID, senderID int64, content string) domain.Message {
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	username := ""
	if u, ok := f.users[senderID]; ok {
		username = u.Username
	}
	msg := domain.Message{
		ID:             f.nextID,
		ChatID:         chatID,
		SenderID:       senderID,
		SenderUsername: username,
		Content:        content,
		CreatedAt:      f.clock,
	}
	f.messages[chatID] = append(f.messages[chatID], msg)
	return msg
}

func (f *FakeAPI) issueTokenLocked(userID int64) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"ver": f.tokenVersion,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(fakeJWTSecret))
}

func (f *FakeAPI) releaseGates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, gate := range f.messageGates {
		close(gate)
		delete(f.messageGates, id)
	}
}

type userKey struct{}

func contextWithUser(r *http.Request, u domain.User) context.Context {
	return context.WithValue(r.Context(), userKey{}, &u)
}

func currentUser(r *http.Request) *domain.User {
	u, _ := r.Context().Value(userKey{}).(*domain.User)
	return u
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			RawQuery:      r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) redirect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.RawQuery == "" {
			f.mu.Lock()
			location, ok := f.redirects[r.URL.Path]
			delete(f.redirects, r.URL.Path)
			f.mu.Unlock()
			if ok {
				w.Header().Set("Location", location)
				w.WriteHeader(http.StatusTemporaryRedirect)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		n := f.failures[key]
		if n > 0 {
			f.failures[key] = n - 1
		}
		f.mu.Unlock()
		if n > 0 {
			writeDetail(w, http.StatusInternalServerError, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := f.authenticate(r)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r, user)))
	})
}

func (f *FakeAPI) authenticate(r *http.Request) (domain.User, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return domain.User{}, errors.New("missing bearer")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(fakeJWTSecret), nil
	})
	if err != nil || !token.Valid {
		return domain.User{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, errors.New("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return domain.User{}, err
	}
	ver, _ := claims["ver"].(float64)

	f.mu.Lock()
	defer f.mu.Unlock()
	if int(ver) != f.tokenVersion {
		return domain.User{}, errors.New("revoked token")
	}
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, errors.New("unknown user")
	}
	return u.User, nil
}

func (f *FakeAPI) adminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r).IsAdmin() {
			writeDetail(w, http.StatusForbidden, "Not enough permissions")
			return
		}
		h(w, r)
	}
}

func (f *FakeAPI) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid form")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)) != nil {
			break
		}
		token, err := f.issueTokenLocked(u.ID)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
		return
	}
	writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
}

func (f *FakeAPI) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string      `json:"email"`
		Username string      `json:"username"`
		Password string      `json:"password"`
		Role     domain.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Username == "" || req.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email, username and password are required")
		return
	}

	role := domain.RoleUser
	if req.Role != "" {
		if caller, err := f.authenticate(r); err == nil && caller.IsAdmin() {
			role = req.Role
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == req.Username {
			writeDetail(w, http.StatusBadRequest, "Username already registered")
			return
		}
		if u.Email == req.Email {
			writeDetail(w, http.StatusBadRequest, "Email already registered")
			return
		}
	}
	u := f.insertUserLocked(req.Username, req.Email, role, hash)
	writeJSON(w, http.StatusOK, u.User)
}

func (f *FakeAPI) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (f *FakeAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	users := make([]domain.User, 0, len(f.users))
	for id := int64(1); id <= f.nextID; id++ {
		if u, ok := f.users[id]; ok {
			users = append(users, u.User)
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, users)
}

func (f *FakeAPI) listChats(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	f.mu.Lock()
	chats := make([]domain.Chat, 0)
	for _, c := range f.chats {
		if f.participants[c.ID][user.ID] {
			chats = append(chats, *c)
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, chats)
}

func (f *FakeAPI) createChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		IsGroup bool   `json:"is_group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	f.mu.Lock()
	chat := f.insertChatLocked(req.Name, req.IsGroup, currentUser(r).ID)
	copied := *chat
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, copied)
}

func (f *FakeAPI) addParticipant(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.failAdds[req.UserID]; ok {
		writeDetail(w, status, "participant rejected")
		return
	}
	members, ok := f.participants[chatID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	if _, ok := f.users[req.UserID]; !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	members[req.UserID] = true
	writeJSON(w, http.StatusOK, map[string]string{"message": "Participant added"})
}

func (f *FakeAPI) listMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}

	f.mu.Lock()
	gate := f.messageGates[chatID]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	_, ok := f.participants[chatID]
	messages := append([]domain.Message{}, f.messages[chatID]...)
	f.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	writeJSON(w, http.StatusOK, toWireMessages(messages))
}

func (f *FakeAPI) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		ChatID  int64  `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "content is required")
		return
	}

	f.mu.Lock()
	if _, ok := f.participants[req.ChatID]; !ok {
		f.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Chat not found")
		return
	}
	msg := f.insertMessageLocked(req.ChatID, currentUser(r).ID, req.Content)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, toWireMessages([]domain.Message{msg})[0])
}

func (f *FakeAPI) createBackup(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	data := append([]byte(nil), f.backup...)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (f *FakeAPI) restoreBackup(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("backup")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "backup file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	f.mu.Lock()
	f.restored = data
	f.restoredName = header.Filename
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database restored"})
}

func (f *FakeAPI) resetDatabase(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.chats = nil
	f.participants = make(map[int64]map[int64]bool)
	f.messages = make(map[int64][]domain.Message)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Database reset"})
}

type wireSender struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type wireMessage struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_id"`
	SenderID  int64      `json:"sender_id"`
	Sender    wireSender `json:"sender"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

func toWireMessages(messages []domain.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{
			ID:        m.ID,
			ChatID:    m.ChatID,
			SenderID:  m.SenderID,
			Sender:    wireSender{ID: m.SenderID, Username: m.SenderUsername},
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
