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

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts the group directory: membership and typing sets.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID string, name string) (models.Group, error)
	ListGroups(ctx context.Context, query string) ([]models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	IsMember(ctx context.Context, groupID string, userID string) (bool, error)
	AddMember(ctx context.Context, groupID string, userID string) (bool, error)
	RemoveMember(ctx context.Context, groupID string, userID string) (bool, error)
	AddTyping(ctx context.Context, groupID string, email string) error
	RemoveTyping(ctx context.Context, groupID string, email string) (bool, error)
	ExpireTyping(ctx context.Context, ttl time.Duration) ([]string, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

type groupRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	CreatedBy string         `db:"created_by"`
	CreatedAt time.Time      `db:"created_at"`
	Members   pq.StringArray `db:"members"`
	Typing    pq.StringArray `db:"typing"`
}

func (r groupRow) toModel() models.Group {
	members := []string(r.Members)
	if members == nil {
		members = []string{}
	}
	typing := []string(r.Typing)
	if typing == nil {
		typing = []string{}
	}
	return models.Group{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		Members:   members,
		Typing:    typing,
	}
}

const selectGroups = `SELECT g.id, g.name, g.created_by, g.created_at,
    COALESCE((SELECT array_agg(gm.user_id ORDER BY gm.joined_at, gm.user_id) FROM group_members gm WHERE gm.group_id = g.id), '{}') AS members,
    COALESCE((SELECT array_agg(gt.email ORDER BY gt.email) FROM group_typing gt WHERE gt.group_id = g.id), '{}') AS typing
    FROM groups g`

// CreateGroup creates a group with the creator as its only member.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID string, name string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	group := models.Group{ID: uuid.NewString(), Name: name, CreatedBy: creatorID}
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (id, name, created_by) VALUES ($1, $2, $3) RETURNING created_at`, group.ID, name, creatorID).
		Scan(&group.CreatedAt); err != nil {
		return models.Group{}, err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, creatorID); err != nil {
		return models.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}

	group.Members = []string{creatorID}
	group.Typing = []string{}
	return group, nil
}

// ListGroups returns all groups ordered by name, optionally filtered by a name substring.
func (r *GroupRepo) ListGroups(ctx context.Context, query string) ([]models.Group, error) {
	var rows []groupRow
	err := r.db.SelectContext(ctx, &rows, selectGroups+` WHERE ($1 = '' OR g.name ILIKE '%' || $1 || '%') ORDER BY lower(g.name) ASC, g.id ASC`, query)
	if err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.toModel())
	}
	return groups, nil
}

// GetGroup fetches a single group document.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var row groupRow
	err := r.db.GetContext(ctx, &row, selectGroups+` WHERE g.id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}
	return row.toModel(), nil
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID string, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

func (r *GroupRepo) groupExists(ctx context.Context, groupID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM groups WHERE id=$1)`, groupID); err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}
	return nil
}

// AddMember adds the user to the member set. It reports whether the set changed.
func (r *GroupRepo) AddMember(ctx context.Context, groupID string, userID string) (bool, error) {
	if err := r.groupExists(ctx, groupID); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, groupID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// RemoveMember removes the user from the member set. It reports whether the set changed.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID string, userID string) (bool, error) {
	if err := r.groupExists(ctx, groupID); err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// AddTyping adds or refreshes a typing entry.
func (r *GroupRepo) AddTyping(ctx context.Context, groupID string, email string) error {
	if err := r.groupExists(ctx, groupID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO group_typing (group_id, email) VALUES ($1, $2)
        ON CONFLICT (group_id, email) DO UPDATE SET updated_at = NOW()`, groupID, email)
	return err
}

// RemoveTyping removes a typing entry. It reports whether the set changed.
func (r *GroupRepo) RemoveTyping(ctx context.Context, groupID string, email string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_typing WHERE group_id=$1 AND email=$2`, groupID, email)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	return count > 0, err
}

// ExpireTyping deletes entries not refreshed within ttl and returns the
// affected group ids. The cutoff uses the database clock, like updated_at.
func (r *GroupRepo) ExpireTyping(ctx context.Context, ttl time.Duration) ([]string, error) {
	var groupIDs []string
	err := r.db.SelectContext(ctx, &groupIDs, `WITH expired AS (
            DELETE FROM group_typing WHERE updated_at < NOW() - make_interval(secs => $1) RETURNING group_id
        ) SELECT DISTINCT group_id FROM expired`, ttl.Seconds())
	return groupIDs, err
}
