package chatview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"wellness-chat/internal/models"
	"wellness-chat/internal/upload"
)

// fakeServer is an in-memory realtime backend shared by several users.
type fakeServer struct {
	mu       sync.Mutex
	seq      int
	groups   map[string]*models.Group
	messages map[string][]models.Message
	users    map[string]models.User
	subs     map[*fakeSub]struct{}
	sendErr  error
}

type fakeSub struct {
	server  *fakeServer
	kind    string
	groupID string
	onDir   func([]models.Group)
	onGroup func(models.Group)
	onMsgs  func([]models.Message)
	onUsers func([]models.User)
}

func (s *fakeSub) Close() error {
	s.server.mu.Lock()
	delete(s.server.subs, s)
	s.server.mu.Unlock()
	return nil
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		groups:   make(map[string]*models.Group),
		messages: make(map[string][]models.Message),
		users:    make(map[string]models.User),
		subs:     make(map[*fakeSub]struct{}),
	}
}

func (s *fakeServer) as(user models.User) *fakeBackend {
	return &fakeBackend{server: s, user: user}
}

// setOnline records presence and pushes the user list.
func (s *fakeServer) setOnline(user models.User, online bool) {
	s.mu.Lock()
	user.Online = online
	s.users[user.ID] = user
	list := s.userListLocked()
	var calls []func()
	for sub := range s.subs {
		if sub.kind == "users" {
			fn := sub.onUsers
			calls = append(calls, func() { fn(list) })
		}
	}
	s.mu.Unlock()
	for _, call := range calls {
		call()
	}
}

func (s *fakeServer) userListLocked() []models.User {
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeServer) open(kind, groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sub := range s.subs {
		if sub.kind == kind && (groupID == "" || sub.groupID == groupID) {
			n++
		}
	}
	return n
}

func (s *fakeServer) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%03d", prefix, s.seq)
}

func copyGroup(g *models.Group) models.Group {
	out := *g
	out.Members = append([]string(nil), g.Members...)
	out.Typing = append([]string(nil), g.Typing...)
	return out
}

func (s *fakeServer) groupListLocked() []models.Group {
	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

func (s *fakeServer) messagesLocked(groupID string) []models.Message {
	out := make([]models.Message, 0, len(s.messages[groupID]))
	for _, m := range s.messages[groupID] {
		m.ReadBy = append([]string(nil), m.ReadBy...)
		out = append(out, m)
	}
	return out
}

// notify delivers to subscribers outside the lock.
func (s *fakeServer) notify(groupID string, dir, group, msgs bool) {
	s.mu.Lock()
	var calls []func()
	for sub := range s.subs {
		sub := sub
		switch {
		case sub.kind == "groups" && dir:
			list := s.groupListLocked()
			calls = append(calls, func() { sub.onDir(list) })
		case sub.kind == "group" && group && sub.groupID == groupID:
			g := copyGroup(s.groups[groupID])
			calls = append(calls, func() { sub.onGroup(g) })
		case sub.kind == "messages" && msgs && sub.groupID == groupID:
			list := s.messagesLocked(groupID)
			calls = append(calls, func() { sub.onMsgs(list) })
		}
	}
	s.mu.Unlock()
	for _, call := range calls {
		call()
	}
}

type fakeBackend struct {
	server *fakeServer
	user   models.User

	mu          sync.Mutex
	markReadErr error
	uploaded    []byte
}

func (b *fakeBackend) SubscribeGroups(ctx context.Context, fn func([]models.Group)) (Subscription, error) {
	s := b.server
	sub := &fakeSub{server: s, kind: "groups", onDir: fn}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	list := s.groupListLocked()
	s.mu.Unlock()
	fn(list)
	return sub, nil
}

func (b *fakeBackend) SubscribeGroup(ctx context.Context, groupID string, fn func(models.Group)) (Subscription, error) {
	s := b.server
	s.mu.Lock()
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return nil, errors.New("group not found")
	}
	sub := &fakeSub{server: s, kind: "group", groupID: groupID, onGroup: fn}
	s.subs[sub] = struct{}{}
	doc := copyGroup(g)
	s.mu.Unlock()
	fn(doc)
	return sub, nil
}

func (b *fakeBackend) SubscribeMessages(ctx context.Context, groupID string, fn func([]models.Message)) (Subscription, error) {
	s := b.server
	sub := &fakeSub{server: s, kind: "messages", groupID: groupID, onMsgs: fn}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	list := s.messagesLocked(groupID)
	s.mu.Unlock()
	fn(list)
	return sub, nil
}

func (b *fakeBackend) SubscribeUsers(ctx context.Context, fn func([]models.User)) (Subscription, error) {
	s := b.server
	sub := &fakeSub{server: s, kind: "users", onUsers: fn}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	list := s.userListLocked()
	s.mu.Unlock()
	fn(list)
	return sub, nil
}

func (b *fakeBackend) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	s := b.server
	s.mu.Lock()
	g := &models.Group{ID: s.nextID("g"), Name: name, CreatedBy: b.user.ID, Members: []string{b.user.ID}}
	s.groups[g.ID] = g
	out := copyGroup(g)
	s.mu.Unlock()
	s.notify(g.ID, true, true, false)
	return out, nil
}

func (b *fakeBackend) JoinGroup(ctx context.Context, groupID string) error {
	return b.setMember(groupID, true)
}

func (b *fakeBackend) LeaveGroup(ctx context.Context, groupID string) error {
	return b.setMember(groupID, false)
}

func (b *fakeBackend) setMember(groupID string, join bool) error {
	s := b.server
	s.mu.Lock()
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return errors.New("group not found")
	}
	members := g.Members[:0:0]
	for _, id := range g.Members {
		if id != b.user.ID {
			members = append(members, id)
		}
	}
	if join {
		members = append(members, b.user.ID)
	}
	g.Members = members
	s.mu.Unlock()
	s.notify(groupID, true, true, false)
	return nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, groupID, text, attachmentURL string) (models.Message, error) {
	s := b.server
	s.mu.Lock()
	if s.sendErr != nil {
		err := s.sendErr
		s.mu.Unlock()
		return models.Message{}, err
	}
	now := time.Now()
	m := models.Message{
		ID:                s.nextID("m"),
		GroupID:           groupID,
		Text:              text,
		SenderID:          b.user.ID,
		SenderDisplayName: b.user.DisplayName,
		AttachmentURL:     attachmentURL,
		CreatedAt:         &now,
		ReadBy:            []string{b.user.ID},
	}
	s.messages[groupID] = append(s.messages[groupID], m)
	s.mu.Unlock()
	s.notify(groupID, false, false, true)
	return m, nil
}

func (b *fakeBackend) MarkRead(ctx context.Context, groupID, messageID string) error {
	b.mu.Lock()
	err := b.markReadErr
	b.mu.Unlock()
	if err != nil {
		return err
	}

	s := b.server
	s.mu.Lock()
	changed := false
	msgs := s.messages[groupID]
	for i := range msgs {
		if msgs[i].ID == messageID && !msgs[i].IsReadBy(b.user.ID) {
			msgs[i].ReadBy = append(msgs[i].ReadBy, b.user.ID)
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.notify(groupID, false, false, true)
	}
	return nil
}

func (b *fakeBackend) UploadAttachment(ctx context.Context, groupID, name, contentType string, r io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.uploaded = data
	b.mu.Unlock()
	return "https://files.example.com/group_files/" + groupID + "/1_" + name, nil
}

// fakeIdentity is a minimal session source.
type fakeIdentity struct {
	mu        sync.Mutex
	user      *models.User
	listeners []func(*models.User)
	hooks     []func()
}

func (f *fakeIdentity) BeforeSignOut(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, fn)
	return func() {}
}

func (f *fakeIdentity) runSignOutHooks() {
	f.mu.Lock()
	hooks := append([]func(){}, f.hooks...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeIdentity) OnIdentityChange(fn func(*models.User)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, fn)
	u := f.user
	f.mu.Unlock()
	fn(u)
	return func() {}
}

func (f *fakeIdentity) set(u *models.User) {
	f.mu.Lock()
	f.user = u
	listeners := append(([]func(*models.User))(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

type fakeTyping struct {
	mu        sync.Mutex
	announced []string
	flushed   int
}

func (f *fakeTyping) Announce(ctx context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, groupID)
	return nil
}

func (f *fakeTyping) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func (f *fakeTyping) flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

type fakePrefs struct {
	mu     sync.Mutex
	values map[string]string

	// When gate is set, Set signals entered and waits for gate to close.
	entered chan struct{}
	gate    chan struct{}
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{values: make(map[string]string)}
}

func (p *fakePrefs) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key], nil
}

func (p *fakePrefs) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	entered, gate := p.entered, p.gate
	p.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *fakePrefs) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
	return nil
}

func (p *fakePrefs) Bool(ctx context.Context, key string) (bool, error) {
	v, _ := p.Get(ctx, key)
	return v == "true", nil
}

func (p *fakePrefs) SetBool(ctx context.Context, key string, v bool) error {
	return p.Set(ctx, key, fmt.Sprint(v))
}

func (p *fakePrefs) get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok
}

// recordingView keeps the latest render of each kind.
type recordingView struct {
	mu       sync.Mutex
	groups   []models.Group
	selected *models.Group
	messages []MessageView
	typing   string
	online   []string
	progress []upload.Progress
	errs     []error
}

func (v *recordingView) RenderGroups(groups []models.Group, self string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.groups = groups
}

func (v *recordingView) RenderSelected(g *models.Group) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = g
}

func (v *recordingView) RenderMessages(msgs []MessageView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = msgs
}

func (v *recordingView) RenderTyping(line string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.typing = line
}

func (v *recordingView) RenderPresence(users []models.User, self string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.online = nil
	for _, u := range users {
		if u.Online && u.ID != self {
			v.online = append(v.online, u.ID)
		}
	}
}

func (v *recordingView) onlineIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.online...)
}

func (v *recordingView) RenderUploadProgress(name string, pct upload.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.progress = append(v.progress, pct)
}

func (v *recordingView) RenderError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append(v.errs, err)
}

func (v *recordingView) lastMessages() []MessageView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]MessageView(nil), v.messages...)
}

func (v *recordingView) groupNames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.groups))
	for _, g := range v.groups {
		names = append(names, g.Name)
	}
	return names
}

func (v *recordingView) typingLine() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.typing
}
