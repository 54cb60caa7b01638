// Package chatview drives a single chat screen: the group directory, who is
// online, the open group with its live message list, typing indicator,
// sending and uploads.
//
// All state lives in Controller behind one mutex. Live updates arrive on
// subscription goroutines and are tagged with the generation that opened them;
// updates from a torn-down generation are dropped.
package chatview

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"wellness-chat/internal/models"
	"wellness-chat/internal/prefs"
	"wellness-chat/internal/typing"
	"wellness-chat/internal/upload"
)

var (
	ErrSignedOut   = errors.New("chatview: not signed in")
	ErrNoSelection = errors.New("chatview: no group selected")
	ErrNotMember   = errors.New("chatview: not a member of the selected group")
)

const markReadTimeout = 5 * time.Second

type Subscription interface {
	Close() error
}

// Backend is the realtime data backend as seen by the controller.
type Backend interface {
	SubscribeGroups(ctx context.Context, fn func([]models.Group)) (Subscription, error)
	SubscribeGroup(ctx context.Context, groupID string, fn func(models.Group)) (Subscription, error)
	SubscribeMessages(ctx context.Context, groupID string, fn func([]models.Message)) (Subscription, error)
	SubscribeUsers(ctx context.Context, fn func([]models.User)) (Subscription, error)
	CreateGroup(ctx context.Context, name string) (models.Group, error)
	JoinGroup(ctx context.Context, groupID string) error
	LeaveGroup(ctx context.Context, groupID string) error
	SendMessage(ctx context.Context, groupID, text, attachmentURL string) (models.Message, error)
	MarkRead(ctx context.Context, groupID, messageID string) error
}

type Identity interface {
	OnIdentityChange(fn func(*models.User)) (unsubscribe func())
	BeforeSignOut(fn func()) (remove func())
}

type Typing interface {
	Announce(ctx context.Context, groupID string) error
	Flush()
}

type Uploader interface {
	Upload(ctx context.Context, groupID, name string, r io.Reader, size int64) (<-chan upload.Progress, <-chan upload.Result)
}

type Prefs interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Bool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, v bool) error
}

// MessageView is one rendered message row.
type MessageView struct {
	Message models.Message
	Mine    bool
	Receipt Receipt
	Image   bool
}

// View receives every render. Calls may come from subscription goroutines.
type View interface {
	RenderGroups(groups []models.Group, self string)
	RenderSelected(group *models.Group)
	RenderMessages(msgs []MessageView)
	RenderTyping(line string)
	RenderPresence(users []models.User, self string)
	RenderUploadProgress(name string, pct upload.Progress)
	RenderError(err error)
}

type Controller struct {
	backend  Backend
	typing   Typing
	uploader Uploader
	prefs    Prefs
	view     View
	log      *zap.Logger

	mu       sync.Mutex
	user     *models.User
	userGen  uint64
	groups   []models.Group
	query    string
	restore  string
	dirSub   Subscription
	users    []models.User
	usersSub Subscription
	selGen   uint64
	selected string
	group    *models.Group
	messages []models.Message
	groupSub Subscription
	msgSub   Subscription
	reading  map[string]struct{}

	// prefMu orders writes of the persisted selection against selGen.
	prefMu sync.Mutex
}

func New(backend Backend, typingSignal Typing, uploader Uploader, store Prefs, view View, logger *zap.Logger) *Controller {
	return &Controller{
		backend:  backend,
		typing:   typingSignal,
		uploader: uploader,
		prefs:    store,
		view:     view,
		log:      logger,
		reading:  make(map[string]struct{}),
	}
}

// Attach follows identity changes until the returned func is called. Pending
// typing entries are cleared before a sign-out invalidates the session.
func (c *Controller) Attach(ctx context.Context, identity Identity) (detach func()) {
	removeHook := identity.BeforeSignOut(c.typing.Flush)
	unsubscribe := identity.OnIdentityChange(func(u *models.User) {
		c.identityChanged(ctx, u)
	})
	return func() {
		unsubscribe()
		removeHook()
		c.teardown()
	}
}

func (c *Controller) identityChanged(ctx context.Context, u *models.User) {
	c.mu.Lock()
	same := u != nil && c.user != nil && c.user.ID == u.ID
	c.mu.Unlock()
	if same {
		return
	}

	c.teardown()
	if u == nil {
		c.view.RenderGroups(nil, "")
		c.view.RenderSelected(nil)
		c.view.RenderMessages(nil)
		c.view.RenderTyping("")
		c.view.RenderPresence(nil, "")
		return
	}

	saved, err := c.prefs.Get(ctx, prefs.KeySelectedGroup)
	if err != nil {
		c.log.Warn("read selected group preference", zap.Error(err))
	}

	c.mu.Lock()
	user := *u
	c.user = &user
	c.userGen++
	gen := c.userGen
	c.restore = saved
	c.mu.Unlock()

	sub, err := c.backend.SubscribeGroups(ctx, func(groups []models.Group) {
		c.groupsUpdated(ctx, gen, groups)
	})
	if err != nil {
		c.log.Error("subscribe to group directory", zap.Error(err))
		c.view.RenderError(err)
		return
	}

	c.mu.Lock()
	if c.userGen != gen {
		c.mu.Unlock()
		_ = sub.Close()
		return
	}
	c.dirSub = sub
	c.mu.Unlock()

	usersSub, err := c.backend.SubscribeUsers(ctx, func(users []models.User) {
		c.usersUpdated(gen, users)
	})
	if err != nil {
		c.log.Warn("subscribe to presence", zap.Error(err))
		return
	}
	c.mu.Lock()
	if c.userGen != gen {
		c.mu.Unlock()
		_ = usersSub.Close()
		return
	}
	c.usersSub = usersSub
	c.mu.Unlock()
}

// teardown closes every subscription and forgets the identity. The persisted
// selection is kept so the next sign-in can restore it.
func (c *Controller) teardown() {
	c.mu.Lock()
	subs := []Subscription{c.dirSub, c.usersSub, c.groupSub, c.msgSub}
	c.dirSub, c.usersSub, c.groupSub, c.msgSub = nil, nil, nil, nil
	c.user = nil
	c.userGen++
	c.selGen++
	c.selected = ""
	c.group = nil
	c.messages = nil
	c.groups = nil
	c.users = nil
	c.restore = ""
	c.mu.Unlock()

	c.typing.Flush()
	closeAll(subs)
}

func closeAll(subs []Subscription) {
	for _, s := range subs {
		if s != nil {
			_ = s.Close()
		}
	}
}

func (c *Controller) groupsUpdated(ctx context.Context, gen uint64, groups []models.Group) {
	c.mu.Lock()
	if c.userGen != gen {
		c.mu.Unlock()
		return
	}
	c.groups = groups
	self := c.user.ID
	visible := c.filterLocked()
	restore := c.restore
	c.restore = ""
	c.mu.Unlock()

	c.view.RenderGroups(visible, self)

	if restore == "" {
		return
	}
	for _, g := range groups {
		if g.ID == restore && g.HasMember(self) {
			go func() {
				if err := c.Select(ctx, restore); err != nil {
					c.log.Warn("restore selected group", zap.String("group_id", restore), zap.Error(err))
				}
			}()
			return
		}
	}
	c.log.Info("forgetting selected group", zap.String("group_id", restore))
	c.forgetSelection(ctx)
}

func (c *Controller) usersUpdated(gen uint64, users []models.User) {
	c.mu.Lock()
	if c.userGen != gen || c.user == nil {
		c.mu.Unlock()
		return
	}
	c.users = users
	self := c.user.ID
	c.mu.Unlock()

	c.view.RenderPresence(users, self)
}

// Online reports whether userID is currently signed in anywhere.
func (c *Controller) Online(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.users {
		if u.ID == userID {
			return u.Online
		}
	}
	return false
}

func (c *Controller) filterLocked() []models.Group {
	out := make([]models.Group, 0, len(c.groups))
	for _, g := range c.groups {
		if g.MatchesQuery(c.query) {
			out = append(out, g)
		}
	}
	return out
}

// Search filters the rendered directory by a case-insensitive name substring.
func (c *Controller) Search(q string) {
	c.mu.Lock()
	c.query = q
	visible := c.filterLocked()
	self := ""
	if c.user != nil {
		self = c.user.ID
	}
	c.mu.Unlock()
	c.view.RenderGroups(visible, self)
}

// Select opens groupID. The previous group and message subscriptions are
// closed before the new pair is opened.
func (c *Controller) Select(ctx context.Context, groupID string) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return ErrSignedOut
	}
	if c.selected == groupID && c.msgSub != nil {
		c.mu.Unlock()
		return nil
	}
	old := []Subscription{c.groupSub, c.msgSub}
	c.groupSub, c.msgSub = nil, nil
	c.selGen++
	gen := c.selGen
	c.selected = groupID
	c.group = nil
	c.messages = nil
	for i := range c.groups {
		if c.groups[i].ID == groupID {
			g := c.groups[i]
			c.group = &g
		}
	}
	group := c.group
	c.mu.Unlock()

	c.typing.Flush()
	closeAll(old)
	c.view.RenderSelected(group)
	c.view.RenderMessages(nil)
	c.view.RenderTyping("")

	groupSub, err := c.backend.SubscribeGroup(ctx, groupID, func(g models.Group) {
		c.groupUpdated(gen, g)
	})
	if err != nil {
		c.abandon(gen)
		return err
	}
	msgSub, err := c.backend.SubscribeMessages(ctx, groupID, func(msgs []models.Message) {
		c.messagesUpdated(gen, msgs)
	})
	if err != nil {
		_ = groupSub.Close()
		c.abandon(gen)
		return err
	}

	c.mu.Lock()
	if c.selGen != gen {
		c.mu.Unlock()
		closeAll([]Subscription{groupSub, msgSub})
		return nil
	}
	c.groupSub, c.msgSub = groupSub, msgSub
	c.mu.Unlock()

	c.persistSelection(ctx, gen, groupID)
	return nil
}

// persistSelection saves groupID unless the selection moved on since gen.
func (c *Controller) persistSelection(ctx context.Context, gen uint64, groupID string) {
	c.prefMu.Lock()
	defer c.prefMu.Unlock()

	c.mu.Lock()
	current := c.selGen == gen
	c.mu.Unlock()
	if !current {
		return
	}
	if err := c.prefs.Set(ctx, prefs.KeySelectedGroup, groupID); err != nil {
		c.log.Warn("persist selected group", zap.String("group_id", groupID), zap.Error(err))
	}
}

func (c *Controller) forgetSelection(ctx context.Context) {
	c.prefMu.Lock()
	defer c.prefMu.Unlock()
	if err := c.prefs.Delete(ctx, prefs.KeySelectedGroup); err != nil {
		c.log.Warn("clear selected group preference", zap.Error(err))
	}
}

func (c *Controller) abandon(gen uint64) {
	c.mu.Lock()
	if c.selGen == gen {
		c.selected = ""
		c.group = nil
	}
	c.mu.Unlock()
	c.view.RenderSelected(nil)
}

// Deselect closes the open group and forgets the persisted selection.
func (c *Controller) Deselect(ctx context.Context) {
	c.mu.Lock()
	subs := []Subscription{c.groupSub, c.msgSub}
	c.groupSub, c.msgSub = nil, nil
	c.selGen++
	c.selected = ""
	c.group = nil
	c.messages = nil
	c.mu.Unlock()

	c.typing.Flush()
	closeAll(subs)
	c.forgetSelection(ctx)
	c.view.RenderSelected(nil)
	c.view.RenderMessages(nil)
	c.view.RenderTyping("")
}

func (c *Controller) groupUpdated(gen uint64, g models.Group) {
	c.mu.Lock()
	if c.selGen != gen || c.user == nil {
		c.mu.Unlock()
		return
	}
	c.group = &g
	email := c.user.Email
	rows := c.rowsLocked()
	c.mu.Unlock()

	c.view.RenderSelected(&g)
	c.view.RenderTyping(typing.Render(typing.Visible(g.Typing, email)))
	c.view.RenderMessages(rows)
}

func (c *Controller) messagesUpdated(gen uint64, msgs []models.Message) {
	c.mu.Lock()
	if c.selGen != gen || c.user == nil {
		c.mu.Unlock()
		return
	}
	c.messages = msgs
	self := c.user.ID
	rows := c.rowsLocked()
	var unread []models.Message
	for _, m := range msgs {
		if m.IsReadBy(self) {
			continue
		}
		if _, inflight := c.reading[m.ID]; inflight {
			continue
		}
		c.reading[m.ID] = struct{}{}
		unread = append(unread, m)
	}
	c.mu.Unlock()

	c.view.RenderMessages(rows)
	for _, m := range unread {
		go c.markRead(m)
	}
}

// markRead is best effort. Failures are logged and never retried.
func (c *Controller) markRead(m models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()
	if err := c.backend.MarkRead(ctx, m.GroupID, m.ID); err != nil {
		c.log.Debug("mark read failed", zap.String("message_id", m.ID), zap.Error(err))
	}
	c.mu.Lock()
	delete(c.reading, m.ID)
	c.mu.Unlock()
}

func (c *Controller) rowsLocked() []MessageView {
	if c.user == nil {
		return nil
	}
	var members []string
	if c.group != nil {
		members = c.group.Members
	}
	rows := make([]MessageView, 0, len(c.messages))
	for _, m := range c.messages {
		rows = append(rows, MessageView{
			Message: m,
			Mine:    m.SenderID == c.user.ID,
			Receipt: ReceiptFor(m, members, c.user.ID),
			Image:   m.AttachmentURL != "" && upload.IsImageURL(m.AttachmentURL),
		})
	}
	return rows
}

// CreateGroup creates a group; the creator becomes its first member.
func (c *Controller) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name, err := models.ValidateGroupName(name)
	if err != nil {
		return models.Group{}, err
	}
	if !c.signedIn() {
		return models.Group{}, ErrSignedOut
	}
	g, err := c.backend.CreateGroup(ctx, name)
	if err != nil {
		c.view.RenderError(err)
		return models.Group{}, err
	}
	return g, nil
}

// Join adds the user to groupID and opens it.
func (c *Controller) Join(ctx context.Context, groupID string) error {
	if !c.signedIn() {
		return ErrSignedOut
	}
	if err := c.backend.JoinGroup(ctx, groupID); err != nil {
		c.view.RenderError(err)
		return err
	}
	return c.Select(ctx, groupID)
}

// Leave removes the user from groupID. Leaving the open group deselects it.
func (c *Controller) Leave(ctx context.Context, groupID string) error {
	if !c.signedIn() {
		return ErrSignedOut
	}
	if err := c.backend.LeaveGroup(ctx, groupID); err != nil {
		c.view.RenderError(err)
		return err
	}
	c.mu.Lock()
	open := c.selected == groupID
	c.mu.Unlock()
	if open {
		c.Deselect(ctx)
	}
	return nil
}

// Send posts text to the open group. On failure the compose text is handed
// back so the caller can restore it.
func (c *Controller) Send(ctx context.Context, text string) (restore string, err error) {
	if _, _, err := models.ValidateMessage(text, ""); err != nil {
		return text, err
	}
	groupID, err := c.sendTarget()
	if err != nil {
		return text, err
	}
	if _, err := c.backend.SendMessage(ctx, groupID, text, ""); err != nil {
		c.log.Warn("send message failed", zap.String("group_id", groupID), zap.Error(err))
		c.view.RenderError(err)
		return text, err
	}
	c.typing.Flush()
	return "", nil
}

// SendAttachment uploads r and, once the upload resolves, posts a message
// carrying its URL together with caption.
func (c *Controller) SendAttachment(ctx context.Context, caption, name string, r io.Reader, size int64) (restore string, err error) {
	groupID, err := c.sendTarget()
	if err != nil {
		return caption, err
	}

	progress, result := c.uploader.Upload(ctx, groupID, name, r, size)
	for pct := range progress {
		c.view.RenderUploadProgress(name, pct)
	}
	res := <-result
	if res.Err != nil {
		c.view.RenderError(res.Err)
		return caption, res.Err
	}

	if _, err := c.backend.SendMessage(ctx, groupID, caption, res.URL); err != nil {
		c.log.Warn("send attachment message failed", zap.String("group_id", groupID), zap.Error(err))
		c.view.RenderError(err)
		return caption, err
	}
	return "", nil
}

func (c *Controller) sendTarget() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return "", ErrSignedOut
	}
	if c.selected == "" {
		return "", ErrNoSelection
	}
	if c.group != nil && !c.group.HasMember(c.user.ID) {
		return "", ErrNotMember
	}
	return c.selected, nil
}

// Typed announces a keystroke in the open group. Errors are only logged.
func (c *Controller) Typed(ctx context.Context) {
	groupID, err := c.sendTarget()
	if err != nil {
		return
	}
	if err := c.typing.Announce(ctx, groupID); err != nil {
		c.log.Debug("typing announce failed", zap.String("group_id", groupID), zap.Error(err))
	}
}

func (c *Controller) DarkMode(ctx context.Context) bool {
	on, err := c.prefs.Bool(ctx, prefs.KeyDarkMode)
	if err != nil {
		c.log.Warn("read dark mode preference", zap.Error(err))
	}
	return on
}

func (c *Controller) ToggleDarkMode(ctx context.Context) (bool, error) {
	on := !c.DarkMode(ctx)
	if err := c.prefs.SetBool(ctx, prefs.KeyDarkMode, on); err != nil {
		return !on, err
	}
	return on, nil
}

// Selected returns the open group id, or "" when none is open.
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// ActiveSubscriptions reports the live subscriptions held: the directory and
// presence plus, while a group is open, its group and message subscriptions.
func (c *Controller) ActiveSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range []Subscription{c.dirSub, c.usersSub, c.groupSub, c.msgSub} {
		if s != nil {
			n++
		}
	}
	return n
}

func (c *Controller) signedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user != nil
}
