package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"wellness-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// GroupMessageRepository defines interactions for group messages.
type GroupMessageRepository interface {
	CreateGroupMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error)
	GetGroupMessage(ctx context.Context, messageID string) (models.Message, error)
	MarkRead(ctx context.Context, messageID string, userID string) (bool, error)
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

type messageRow struct {
	ID                string         `db:"id"`
	GroupID           string         `db:"group_id"`
	Text              string         `db:"text"`
	SenderID          string         `db:"sender_id"`
	SenderEmail       string         `db:"sender_email"`
	SenderDisplayName string         `db:"sender_display_name"`
	SenderAvatarURL   string         `db:"sender_avatar_url"`
	AttachmentURL     sql.NullString `db:"attachment_url"`
	CreatedAt         time.Time      `db:"created_at"`
	ReadBy            pq.StringArray `db:"read_by"`
}

func (r messageRow) toModel() models.Message {
	created := r.CreatedAt
	readBy := []string(r.ReadBy)
	if readBy == nil {
		readBy = []string{}
	}
	return models.Message{
		ID:                r.ID,
		GroupID:           r.GroupID,
		Text:              r.Text,
		SenderID:          r.SenderID,
		SenderEmail:       r.SenderEmail,
		SenderDisplayName: r.SenderDisplayName,
		SenderAvatarURL:   r.SenderAvatarURL,
		AttachmentURL:     r.AttachmentURL.String,
		CreatedAt:         &created,
		ReadBy:            readBy,
	}
}

const selectMessages = `SELECT m.id, m.group_id, m.text, m.sender_id, m.sender_email, m.sender_display_name,
    m.sender_avatar_url, m.attachment_url, m.created_at,
    COALESCE((SELECT array_agg(mr.user_id ORDER BY mr.read_at, mr.user_id) FROM message_reads mr WHERE mr.message_id = m.id), '{}') AS read_by
    FROM group_messages m`

// CreateGroupMessage persists a message and records the sender as its first reader.
func (r *GroupMessageRepo) CreateGroupMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	msg.ID = uuid.NewString()
	attachment := sql.NullString{String: msg.AttachmentURL, Valid: msg.AttachmentURL != ""}
	var created time.Time
	if err = tx.QueryRowxContext(ctx, `INSERT INTO group_messages (id, group_id, sender_id, sender_email, sender_display_name, sender_avatar_url, text, attachment_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		msg.ID, msg.GroupID, msg.SenderID, msg.SenderEmail, msg.SenderDisplayName, msg.SenderAvatarURL, msg.Text, attachment).
		Scan(&created); err != nil {
		return models.Message{}, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, msg.ID, msg.SenderID); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.CreatedAt = &created
	msg.ReadBy = []string{msg.SenderID}
	return msg, nil
}

// ListGroupMessages returns the full backlog ordered by server timestamp.
func (r *GroupMessageRepo) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, selectMessages+` WHERE m.group_id=$1 ORDER BY m.created_at ASC, m.id ASC`, groupID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toModel())
	}
	return msgs, nil
}

// GetGroupMessage fetches a single message.
func (r *GroupMessageRepo) GetGroupMessage(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, selectMessages+` WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// MarkRead adds the user to the message's read set. It reports whether the set changed.
func (r *GroupMessageRepo) MarkRead(ctx context.Context, messageID string, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT id, $2 FROM group_messages WHERE id=$1
        ON CONFLICT DO NOTHING`, messageID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}
