package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/db"
	"github.com/familyassistant/server/internal/model"
)

type familyRepo struct {
	q db.DBTX
}

// NewFamilyRepo creates a new FamilyRepo instance
func NewFamilyRepo(q db.DBTX) FamilyRepo {
	return &familyRepo{q: q}
}

// Create inserts a family
func (r *familyRepo) Create(ctx context.Context, name string) (model.Family, error) {
	f := model.Family{Name: name}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO families (name) VALUES ($1) RETURNING id, created_at
	`, name).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return model.Family{}, fmt.Errorf("insert family: %w", err)
	}
	return f, nil
}

// MembershipForUser returns the family the user's member record belongs to.
func (r *familyRepo) MembershipForUser(ctx context.Context, userID uuid.UUID) (model.Membership, error) {
	m := model.Membership{UserID: userID}
	err := r.q.QueryRowContext(ctx, `
		SELECT fm.id, f.id, f.name
		FROM family_members fm
		JOIN families f ON f.id = fm.family_id
		WHERE fm.user_id = $1
	`, userID).Scan(&m.MemberID, &m.FamilyID, &m.FamilyName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Membership{}, ErrNotFound
		}
		return model.Membership{}, fmt.Errorf("query membership: %w", err)
	}
	return m, nil
}

const memberColumns = `id, family_id, user_id, name, role, relationship, avatar, avatar_type, photo_url, points, level, workload, age, created_at, updated_at`

type memberRepo struct {
	q db.DBTX
}

// NewMemberRepo creates a new MemberRepo instance
func NewMemberRepo(q db.DBTX) MemberRepo {
	return &memberRepo{q: q}
}

// Create inserts a member
func (r *memberRepo) Create(ctx context.Context, m model.Member) (model.Member, error) {
	created, err := scanMember(r.q.QueryRowContext(ctx, `
		INSERT INTO family_members (family_id, user_id, name, role, relationship, avatar, avatar_type, photo_url, points, level, workload, age)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+memberColumns,
		m.FamilyID, m.UserID, m.Name, m.Role, m.Relationship, m.Avatar, m.AvatarType, m.PhotoURL,
		m.Points, m.Level, m.Workload, m.Age))
	if err != nil {
		return model.Member{}, fmt.Errorf("insert member: %w", mapUniqueViolation(err))
	}
	return created, nil
}

// List returns the family's members, oldest first
func (r *memberRepo) List(ctx context.Context, familyID uuid.UUID) ([]model.Member, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM family_members
		WHERE family_id = $1
		ORDER BY created_at, id
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Get returns a member of the family
func (r *memberRepo) Get(ctx context.Context, familyID, id uuid.UUID) (model.Member, error) {
	m, err := scanMember(r.q.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM family_members WHERE id = $1 AND family_id = $2
	`, id, familyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Member{}, ErrNotFound
		}
		return model.Member{}, fmt.Errorf("query member: %w", err)
	}
	return m, nil
}

// Update applies the present fields of patch. An empty patch returns the member unchanged.
func (r *memberRepo) Update(ctx context.Context, familyID, id uuid.UUID, patch model.MemberPatch, now time.Time) (model.Member, error) {
	var b setBuilder
	addOptional(&b, "name", patch.Name)
	addOptional(&b, "role", patch.Role)
	addOptional(&b, "relationship", patch.Relationship)
	addOptional(&b, "avatar", patch.Avatar)
	addOptional(&b, "avatar_type", patch.AvatarType)
	addOptional(&b, "photo_url", patch.PhotoURL)
	addOptional(&b, "points", patch.Points)
	addOptional(&b, "level", patch.Level)
	addOptional(&b, "workload", patch.Workload)
	addOptional(&b, "age", patch.Age)
	if b.empty() {
		return r.Get(ctx, familyID, id)
	}
	b.add("updated_at", now)

	query := `UPDATE family_members SET ` + b.clause() +
		` WHERE id = ` + b.arg(id) + ` AND family_id = ` + b.arg(familyID) +
		` RETURNING ` + memberColumns
	m, err := scanMember(r.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Member{}, ErrNotFound
		}
		return model.Member{}, fmt.Errorf("update member: %w", err)
	}
	return m, nil
}

// Detach clears family_id so the member leaves the roster but keeps its history.
func (r *memberRepo) Detach(ctx context.Context, familyID, id uuid.UUID, now time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE family_members SET family_id = NULL, updated_at = $3 WHERE id = $1 AND family_id = $2
	`, id, familyID, now)
	if err != nil {
		return fmt.Errorf("detach member: %w", err)
	}
	return requireOneRow(result, "detach member")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Name, &m.Role, &m.Relationship, &m.Avatar, &m.AvatarType,
		&m.PhotoURL, &m.Points, &m.Level, &m.Workload, &m.Age, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}
