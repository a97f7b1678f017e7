package db

import (
	"context"
	"database/sql"
	"time"
)

const (
	JobStatusQueued  = "queued"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

func (d *DB) CreateJob(ctx context.Context, j Job) (int64, error) {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	var commandID any
	if j.CommandID != "" {
		commandID = j.CommandID
	}
	stmt, err := d.SQL.PrepareContext(ctx, `INSERT INTO jobs (command_id, type, target_agent, payload_json, status, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	res, err := stmt.ExecContext(ctx, commandID, j.Type, j.TargetAgent, j.PayloadJSON, j.Status, j.Error, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) UpdateJobStatus(ctx context.Context, id int64, status string) error {
	stmt, err := d.SQL.PrepareContext(ctx, `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, status, time.Now().UTC(), id)
	return err
}

// CompleteJob records the result an agent reported for a command. Jobs that
// already finished are left alone so a retained heartbeat replayed after a
// restart does not rewrite history. It reports whether a row changed.
func (d *DB) CompleteJob(ctx context.Context, commandID, status, errMsg string) (bool, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE command_id = ? AND status = ?`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()
	res, err := stmt.ExecContext(ctx, status, errMsg, time.Now().UTC(), commandID, JobStatusQueued)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const jobColumns = `id, command_id, type, target_agent, payload_json, status, error, created_at, updated_at`

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var commandID, target, payload, status, errMsg sql.NullString
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&j.ID, &commandID, &j.Type, &target, &payload, &status, &errMsg, &createdAt, &updatedAt); err != nil {
		return Job{}, err
	}
	j.CommandID = commandID.String
	j.TargetAgent = target.String
	j.PayloadJSON = payload.String
	j.Status = status.String
	j.Error = errMsg.String
	if createdAt.Valid {
		j.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		j.UpdatedAt = updatedAt.Time
	}
	return j, nil
}

func (d *DB) GetJobByCommandID(ctx context.Context, commandID string) (Job, error) {
	return scanJob(d.SQL.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE command_id = ?`, commandID))
}

func (d *DB) ListJobs(ctx context.Context, target string) ([]Job, error) {
	var (
		stmt *sql.Stmt
		err  error
	)
	if target != "" {
		stmt, err = d.SQL.PrepareContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE target_agent = ? ORDER BY created_at DESC, id DESC`)
	} else {
		stmt, err = d.SQL.PrepareContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	var rows *sql.Rows
	if target != "" {
		rows, err = stmt.QueryContext(ctx, target)
	} else {
		rows, err = stmt.QueryContext(ctx)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
