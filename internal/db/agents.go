package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
)

const agentColumns = `a.id, a.agent_id, a.name, a.ip, a.last_seen, a.status, a.paused, a.ticks, a.root_status, a.tick_interval_ms, a.notes, s.id, s.name, a.ssh_address, a.ssh_user, a.ssh_key
FROM agents a
LEFT JOIN scenarios s ON s.id = a.last_scenario_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	var ip, status, rootStatus, notes sql.NullString
	var lastSeen sql.NullTime
	var paused sql.NullBool
	var ticks, interval sql.NullInt64
	var scenarioID sql.NullInt64
	var scenarioName sql.NullString
	var sshAddr, sshUser, sshKey sql.NullString
	if err := row.Scan(&a.ID, &a.AgentID, &a.Name, &ip, &lastSeen, &status, &paused, &ticks, &rootStatus, &interval, &notes, &scenarioID, &scenarioName, &sshAddr, &sshUser, &sshKey); err != nil {
		return Agent{}, err
	}
	a.IP = ip.String
	a.Status = status.String
	a.Paused = paused.Bool
	a.Ticks = uint64(ticks.Int64)
	a.RootStatus = rootStatus.String
	a.TickIntervalMS = interval.Int64
	a.Notes = notes.String
	if lastSeen.Valid {
		a.LastSeen = lastSeen.Time
		a.LastSeenAgo = humanize.Time(a.LastSeen)
	}
	if scenarioID.Valid {
		a.LastScenario = &ScenarioRef{ID: scenarioID.Int64, Name: scenarioName.String}
	}
	a.InstallConfig = buildInstallConfig(sshAddr, sshUser, sshKey)

	// Check for offline status
	if !a.LastSeen.IsZero() && time.Since(a.LastSeen) > OfflineAfter {
		a.Status = "offline"
	} else if a.LastSeen.IsZero() {
		a.Status = "unknown"
	}
	return a, nil
}

func (d *DB) ListAgents(ctx context.Context) ([]Agent, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `SELECT `+agentColumns+` ORDER BY a.name, a.agent_id`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (d *DB) GetAgentByID(ctx context.Context, id int64) (Agent, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `SELECT `+agentColumns+` WHERE a.id = ?`)
	if err != nil {
		return Agent{}, err
	}
	defer stmt.Close()
	return scanAgent(stmt.QueryRowContext(ctx, id))
}

func (d *DB) GetAgentByAgentID(ctx context.Context, agentID string) (Agent, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `SELECT `+agentColumns+` WHERE a.agent_id = ?`)
	if err != nil {
		return Agent{}, err
	}
	defer stmt.Close()
	return scanAgent(stmt.QueryRowContext(ctx, agentID))
}

// UpsertAgentStatus records a heartbeat, creating the agent on first sight.
func (d *DB) UpsertAgentStatus(ctx context.Context, s AgentStatus) error {
	if s.AgentID == "" {
		return errors.New("agent id required")
	}
	if s.Name == "" {
		s.Name = s.AgentID
	}
	stmt, err := d.SQL.PrepareContext(ctx, `INSERT INTO agents (agent_id, name, ip, last_seen, status, paused, ticks, root_status, tick_interval_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(agent_id) DO UPDATE SET
	name=excluded.name,
	ip=excluded.ip,
	last_seen=excluded.last_seen,
	status=excluded.status,
	paused=excluded.paused,
	ticks=excluded.ticks,
	root_status=excluded.root_status,
	tick_interval_ms=excluded.tick_interval_ms`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, s.AgentID, s.Name, s.IP, time.Now().UTC(), s.Status, s.Paused, int64(s.Ticks), s.RootStatus, s.TickIntervalMS)
	return err
}

// EnsureAgent creates a placeholder row for an agent that has not reported
// yet, keeping any existing row untouched.
func (d *DB) EnsureAgent(ctx context.Context, agentID, name string) error {
	if agentID == "" {
		return errors.New("agent id required")
	}
	if name == "" {
		name = agentID
	}
	_, err := d.SQL.ExecContext(ctx, `INSERT INTO agents (agent_id, name) VALUES (?, ?) ON CONFLICT(agent_id) DO NOTHING`, agentID, name)
	return err
}

func (d *DB) UpdateAgentScenario(ctx context.Context, agentID string, scenarioID int64) error {
	stmt, err := d.SQL.PrepareContext(ctx, `UPDATE agents SET last_scenario_id = ? WHERE agent_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	var val any
	if scenarioID > 0 {
		val = scenarioID
	}
	_, err = stmt.ExecContext(ctx, val, agentID)
	return err
}

func (d *DB) UpdateAgentInstallConfig(ctx context.Context, agentID string, cfg InstallConfig) error {
	stmt, err := d.SQL.PrepareContext(ctx, `UPDATE agents SET ssh_address = ?, ssh_user = ?, ssh_key = ? WHERE agent_id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, cfg.Address, cfg.User, cfg.SSHKey, agentID)
	return err
}

func (d *DB) UpdateAgentNotes(ctx context.Context, agentID, notes string) error {
	_, err := d.SQL.ExecContext(ctx, `UPDATE agents SET notes = ? WHERE agent_id = ?`, notes, agentID)
	return err
}

// DeleteAgent removes the agent and its snapshot.
func (d *DB) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := d.SQL.ExecContext(ctx, `DELETE FROM snapshots WHERE agent_id = ?`, agentID); err != nil {
		return err
	}
	_, err := d.SQL.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	return err
}

// SaveSnapshot replaces the stored snapshot for the agent.
func (d *DB) SaveSnapshot(ctx context.Context, s Snapshot) error {
	if s.AgentID == "" {
		return errors.New("agent id required")
	}
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now().UTC()
	}
	stmt, err := d.SQL.PrepareContext(ctx, `INSERT INTO snapshots (agent_id, tree_json, stats_json, captured_at) VALUES (?, ?, ?, ?)
ON CONFLICT(agent_id) DO UPDATE SET
	tree_json=excluded.tree_json,
	stats_json=excluded.stats_json,
	captured_at=excluded.captured_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, s.AgentID, string(s.TreeJSON), string(s.StatsJSON), s.CapturedAt)
	return err
}

func (d *DB) GetSnapshot(ctx context.Context, agentID string) (Snapshot, error) {
	var s Snapshot
	var tree, stats sql.NullString
	var captured sql.NullTime
	err := d.SQL.QueryRowContext(ctx, `SELECT agent_id, tree_json, stats_json, captured_at FROM snapshots WHERE agent_id = ?`, agentID).
		Scan(&s.AgentID, &tree, &stats, &captured)
	if err != nil {
		return Snapshot{}, err
	}
	if tree.Valid && tree.String != "" {
		s.TreeJSON = []byte(tree.String)
	}
	if stats.Valid && stats.String != "" {
		s.StatsJSON = []byte(stats.String)
	}
	if captured.Valid {
		s.CapturedAt = captured.Time
	}
	return s, nil
}
