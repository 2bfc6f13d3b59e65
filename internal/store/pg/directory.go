package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/deskclaw/internal/model"
)

// Directory implements store.Directory on Postgres.
type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), COALESCE(color, '')
		 FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []model.Department
	for rows.Next() {
		var dep model.Department
		if err := rows.Scan(&dep.ID, &dep.Name, &dep.Description, &dep.Color); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

func (d *Directory) ListAgents(ctx context.Context) ([]model.Agent, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, department_ids FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, pq.Array(&a.DepartmentIDs)); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
