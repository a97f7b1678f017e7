package db

import "context"

func (d *DB) ListScenarios(ctx context.Context) ([]Scenario, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `SELECT id, name, description, config_yaml FROM scenarios ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scenarios := []Scenario{}
	for rows.Next() {
		var s Scenario
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.ConfigYAML); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, rows.Err()
}

func (d *DB) GetScenarioByID(ctx context.Context, id int64) (Scenario, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `SELECT id, name, description, config_yaml FROM scenarios WHERE id = ?`)
	if err != nil {
		return Scenario{}, err
	}
	defer stmt.Close()
	var s Scenario
	if err := stmt.QueryRowContext(ctx, id).Scan(&s.ID, &s.Name, &s.Description, &s.ConfigYAML); err != nil {
		return Scenario{}, err
	}
	return s, nil
}

func (d *DB) CreateScenario(ctx context.Context, s Scenario) (int64, error) {
	stmt, err := d.SQL.PrepareContext(ctx, `INSERT INTO scenarios (name, description, config_yaml) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	res, err := stmt.ExecContext(ctx, s.Name, s.Description, s.ConfigYAML)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) UpdateScenario(ctx context.Context, s Scenario) error {
	stmt, err := d.SQL.PrepareContext(ctx, `UPDATE scenarios SET name = ?, description = ?, config_yaml = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, s.Name, s.Description, s.ConfigYAML, s.ID)
	return err
}

// DeleteScenario removes the scenario and clears it from agents that last
// applied it.
func (d *DB) DeleteScenario(ctx context.Context, id int64) error {
	if _, err := d.SQL.ExecContext(ctx, `UPDATE agents SET last_scenario_id = NULL WHERE last_scenario_id = ?`, id); err != nil {
		return err
	}
	_, err := d.SQL.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	return err
}
