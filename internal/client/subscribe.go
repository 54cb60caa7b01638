package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
)

// Subscription is one live websocket stream. Callbacks run on the
// subscription's reader goroutine, one at a time.
type Subscription struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// Close stops delivery and releases the connection. It does not wait for the
// reader, so it is safe to call from inside a callback; use Done to wait.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// Done is closed when the reader goroutine exits.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the stream ended. It is nil after Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SubscribeGroups streams the full ordered group list.
func (c *Client) SubscribeGroups(ctx context.Context, fn func([]models.Group)) (*Subscription, error) {
	return c.subscribe(ctx, "/ws/groups", func(ev models.StreamEvent) {
		if ev.Type == models.EventGroups {
			fn(ev.Groups)
		}
	})
}

// SubscribeGroup streams one group document.
func (c *Client) SubscribeGroup(ctx context.Context, groupID string, fn func(models.Group)) (*Subscription, error) {
	return c.subscribe(ctx, "/ws/groups/"+url.PathEscape(groupID), func(ev models.StreamEvent) {
		if ev.Type == models.EventGroup && ev.Group != nil {
			fn(*ev.Group)
		}
	})
}

// SubscribeUsers streams the user list with presence.
func (c *Client) SubscribeUsers(ctx context.Context, fn func([]models.User)) (*Subscription, error) {
	return c.subscribe(ctx, "/ws/users", func(ev models.StreamEvent) {
		if ev.Type == models.EventUsers {
			fn(ev.Users)
		}
	})
}

// SubscribeMessages keeps an ordered copy of the group's messages and hands
// the whole list to fn after every change.
func (c *Client) SubscribeMessages(ctx context.Context, groupID string, fn func([]models.Message)) (*Subscription, error) {
	var log MessageLog
	return c.subscribe(ctx, "/ws/groups/"+url.PathEscape(groupID)+"/messages", func(ev models.StreamEvent) {
		if log.Apply(ev) {
			fn(log.Messages())
		}
	})
}

func (c *Client) subscribe(ctx context.Context, path string, dispatch func(models.StreamEvent)) (*Subscription, error) {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += path
	if token := c.Token(); token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	var conn *websocket.Conn
	dial := func() error {
		var err error
		var resp *http.Response
		conn, resp, err = c.dialer.DialContext(ctx, u.String(), nil)
		if err == nil {
			return nil
		}
		if resp != nil && resp.StatusCode < 500 {
			return backoff.Permanent(&APIError{Status: resp.StatusCode})
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(dial, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{conn: conn, cancel: cancel, done: make(chan struct{})}
	go func() {
		<-subCtx.Done()
		_ = conn.Close()
	}()
	go c.readLoop(subCtx, path, sub, dispatch)
	return sub, nil
}

func (c *Client) readLoop(ctx context.Context, path string, sub *Subscription, dispatch func(models.StreamEvent)) {
	defer close(sub.done)
	defer sub.cancel()
	for {
		var ev models.StreamEvent
		if err := sub.conn.ReadJSON(&ev); err != nil {
			if sub.isClosed() || ctx.Err() != nil {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("subscription ended", zap.String("path", path), zap.Error(err))
			}
			sub.mu.Lock()
			sub.err = err
			sub.mu.Unlock()
			return
		}
		if sub.isClosed() {
			return
		}
		dispatch(ev)
	}
}

// MessageLog applies message stream events to an ordered, de-duplicated list.
type MessageLog struct {
	byID map[string]int
	msgs []models.Message
}

// Apply reports whether ev changed the list.
func (l *MessageLog) Apply(ev models.StreamEvent) bool {
	switch ev.Type {
	case models.EventSnapshot:
		l.msgs = append([]models.Message(nil), ev.Messages...)
		l.reindex()
		return true
	case models.EventMessage:
		if ev.Message == nil {
			return false
		}
		if i, ok := l.byID[ev.Message.ID]; ok {
			l.msgs[i] = *ev.Message
		} else {
			l.msgs = append(l.msgs, *ev.Message)
		}
		l.reindex()
		return true
	case models.EventRead:
		i, ok := l.byID[ev.MessageID]
		if !ok || l.msgs[i].IsReadBy(ev.UserID) {
			return false
		}
		readBy := append([]string(nil), l.msgs[i].ReadBy...)
		l.msgs[i].ReadBy = append(readBy, ev.UserID)
		return true
	}
	return false
}

// Messages returns a copy safe to hand to another goroutine.
func (l *MessageLog) Messages() []models.Message {
	return append([]models.Message(nil), l.msgs...)
}

func (l *MessageLog) reindex() {
	models.SortMessages(l.msgs)
	l.byID = make(map[string]int, len(l.msgs))
	for i, m := range l.msgs {
		l.byID[m.ID] = i
	}
}
