package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
	"github.com/nextlevelbuilder/deskclaw/internal/store"
)

// ConversationStore implements store.ConversationStore on Postgres.
// Messages are stored as a jsonb document per conversation; status and
// routing fields are first-class columns so WriteStatus touches only
// what changed.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, name, avatar, code, contact, tags, status,
	assigned_agent_id, department_id, awaiting_selection, selection_sent,
	awaiting_rating, rating, ended_at, messages, last_message,
	last_message_time, unread_count`

func (s *ConversationStore) LoadAll(ctx context.Context) (map[string]*model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Conversation)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (*model.Conversation, error) {
	var (
		c           model.Conversation
		name        sql.NullString
		avatar      sql.NullString
		code        sql.NullString
		contact     sql.NullString
		agentID     sql.NullString
		deptID      sql.NullString
		rating      sql.NullInt64
		endedAt     sql.NullTime
		msgsJSON    []byte
		lastMessage sql.NullString
		lastTime    sql.NullTime
	)
	err := r.Scan(&c.ID, &name, &avatar, &code, &contact, pq.Array(&c.Tags),
		&c.Status, &agentID, &deptID, &c.AwaitingDepartmentSelection,
		&c.DepartmentSelectionSent, &c.AwaitingRating, &rating, &endedAt,
		&msgsJSON, &lastMessage, &lastTime, &c.UnreadCount)
	if err != nil {
		return nil, err
	}
	c.Name = name.String
	c.Avatar = avatar.String
	c.Code = code.String
	c.Contact = contact.String
	c.AssignedAgentID = agentID.String
	c.DepartmentID = deptID.String
	c.Rating = int(rating.Int64)
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	c.LastMessage = lastMessage.String
	if lastTime.Valid {
		c.LastMessageTime = lastTime.Time
	}
	if len(msgsJSON) > 0 {
		if err := json.Unmarshal(msgsJSON, &c.Messages); err != nil {
			return nil, fmt.Errorf("decode messages for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (s *ConversationStore) WriteStatus(ctx context.Context, w store.StatusWrite) error {
	sets := []string{
		"status = $2", "assigned_agent_id = NULLIF($3, '')",
		"department_id = NULLIF($4, '')", "updated_at = now()",
	}
	args := []any{w.ConversationID, string(w.Status), w.AssignedAgentID, w.DepartmentID}

	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if w.DisplayName != nil {
		add("name = $%d", *w.DisplayName)
	}
	if w.Avatar != nil {
		add("avatar = $%d", *w.Avatar)
	}
	if w.AwaitingDepartmentSelection != nil {
		add("awaiting_selection = $%d", *w.AwaitingDepartmentSelection)
	}
	if w.DepartmentSelectionSent != nil {
		add("selection_sent = $%d", *w.DepartmentSelectionSent)
	}
	if w.AwaitingRating != nil {
		add("awaiting_rating = $%d", *w.AwaitingRating)
	}
	if w.Rating != nil {
		add("rating = NULLIF($%d, 0)", *w.Rating)
	}
	if w.ClearEndedAt {
		sets = append(sets, "ended_at = NULL")
	} else if w.SetEndedAt {
		sets = append(sets, "ended_at = now()")
	}

	query := `UPDATE conversations SET ` + strings.Join(sets, ", ") + ` WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write status %s: %w", w.ConversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// First write for a conversation the store has never seen.
		return s.insertSkeleton(ctx, w)
	}
	return nil
}

func (s *ConversationStore) insertSkeleton(ctx context.Context, w store.StatusWrite) error {
	c := &model.Conversation{
		ID:              w.ConversationID,
		Status:          w.Status,
		AssignedAgentID: w.AssignedAgentID,
		DepartmentID:    w.DepartmentID,
	}
	if w.DisplayName != nil {
		c.Name = *w.DisplayName
	}
	if w.Avatar != nil {
		c.Avatar = *w.Avatar
	}
	if w.AwaitingDepartmentSelection != nil {
		c.AwaitingDepartmentSelection = *w.AwaitingDepartmentSelection
	}
	if w.DepartmentSelectionSent != nil {
		c.DepartmentSelectionSent = *w.DepartmentSelectionSent
	}
	if w.AwaitingRating != nil {
		c.AwaitingRating = *w.AwaitingRating
	}
	if w.Rating != nil {
		c.Rating = *w.Rating
	}
	return s.WriteFull(ctx, w.ConversationID, c)
}

func (s *ConversationStore) WriteFull(ctx context.Context, id string, c *model.Conversation) error {
	msgsJSON, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("encode messages for %s: %w", id, err)
	}
	var endedAt *time.Time
	if c.EndedAt != nil {
		endedAt = c.EndedAt
	}
	var lastTime *time.Time
	if !c.LastMessageTime.IsZero() {
		lastTime = &c.LastMessageTime
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''),
		        $10, $11, $12, NULLIF($13, 0), $14, $15, $16, $17, $18, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, avatar = EXCLUDED.avatar,
			code = EXCLUDED.code, contact = EXCLUDED.contact,
			tags = EXCLUDED.tags, status = EXCLUDED.status,
			assigned_agent_id = EXCLUDED.assigned_agent_id,
			department_id = EXCLUDED.department_id,
			awaiting_selection = EXCLUDED.awaiting_selection,
			selection_sent = EXCLUDED.selection_sent,
			awaiting_rating = EXCLUDED.awaiting_rating,
			rating = EXCLUDED.rating, ended_at = EXCLUDED.ended_at,
			messages = EXCLUDED.messages,
			last_message = EXCLUDED.last_message,
			last_message_time = EXCLUDED.last_message_time,
			unread_count = EXCLUDED.unread_count, updated_at = now()`,
		id, c.Name, c.Avatar, c.Code, c.Contact, pq.Array(c.Tags),
		string(c.Status), c.AssignedAgentID, c.DepartmentID,
		c.AwaitingDepartmentSelection, c.DepartmentSelectionSent,
		c.AwaitingRating, c.Rating, endedAt, msgsJSON, c.LastMessage,
		lastTime, c.UnreadCount)
	if err != nil {
		return fmt.Errorf("write conversation %s: %w", id, err)
	}
	return nil
}
