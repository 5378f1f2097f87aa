package store

import (
	"context"
	"fmt"
)

// Table names
const (
	FieldsTable         = "salesforce_fields"
	FieldUsageTable     = "salesforce_field_usage"
	FlowFieldUsageTable = "salesforce_flow_field_usage"
)

func (d Dialect) createStatements() []string {
	ts := d.timestampType()

	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	object_name VARCHAR(255) NOT NULL,
	field_name VARCHAR(255) NOT NULL,
	field_label VARCHAR(255),
	data_type VARCHAR(255),
	last_seen %s NOT NULL,
	last_updated_in_sf %s NULL,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (object_name, field_name)
)`, FieldsTable, ts, ts),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	component_type VARCHAR(255) NOT NULL,
	component_name VARCHAR(255) NOT NULL,
	ref_component_name VARCHAR(255) NOT NULL,
	ref_component_type VARCHAR(255),
	last_seen %s NOT NULL,
	PRIMARY KEY (component_type, component_name, ref_component_name)
)`, FieldUsageTable, ts),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	flow_name VARCHAR(255) NOT NULL,
	field_name VARCHAR(255) NOT NULL,
	flow_status VARCHAR(255),
	last_seen %s NOT NULL,
	PRIMARY KEY (flow_name, field_name)
)`, FlowFieldUsageTable, ts),
	}
}

// EnsureSchema creates the mirror tables if they are missing. It is safe to
// call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.createStatements() {
		if _, err := s.exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	// Tables created before last_updated_in_sf existed get the column here.
	// On current tables the ALTER fails with a duplicate column error, which is expected.
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN last_updated_in_sf %s NULL", FieldsTable, s.dialect.timestampType())
	_, _ = s.exec(ctx, alter)

	return nil
}
