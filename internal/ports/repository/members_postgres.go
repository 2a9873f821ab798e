package repository

import (
	"context"
	"database/sql"

	"attendance.service/internal/core/attendance"
)

// MemberRepository resolves enrollment scopes and roles from the members
// table. The engine only reads here; member management lives elsewhere.
type MemberRepository struct {
	DB *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{DB: db}
}

// EligibleUsers returns punchable members in the category, or every
// punchable member when categoryID is empty (global scope).
func (r *MemberRepository) EligibleUsers(ctx context.Context, categoryID string) ([]string, error) {
	query := `SELECT id FROM members WHERE role IN ($1, $2)`
	args := []any{string(attendance.RoleUsher), string(attendance.RoleCategoryAdmin)}
	if categoryID != "" {
		query += ` AND category_id = $3`
		args = append(args, categoryID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *MemberRepository) RoleOf(ctx context.Context, userID string) (attendance.Role, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM members WHERE id = $1`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return attendance.RoleMember, nil
	}
	if err != nil {
		return "", err
	}
	return attendance.Role(role), nil
}
