package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MarkAllFieldsDeleted flags every stored field deleted. A field cycle starts
// here; UpsertField clears the flag for everything observed afterwards.
func (s *Store) MarkAllFieldsDeleted(ctx context.Context) (int64, error) {
	result, err := s.exec(ctx, "UPDATE "+FieldsTable+" SET is_deleted = ?", true)
	if err != nil {
		return 0, fmt.Errorf("failed to mark fields deleted: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpsertField inserts or refreshes a field. last_updated_in_sf only moves
// when the label or data type differ from what is stored.
func (s *Store) UpsertField(ctx context.Context, f Field) (UpsertResult, error) {
	now := s.now()

	var label, dataType sql.NullString
	err := s.queryRow(ctx,
		"SELECT field_label, data_type FROM "+FieldsTable+" WHERE object_name = ? AND field_name = ?",
		f.ObjectName, f.FieldName,
	).Scan(&label, &dataType)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.exec(ctx, `
INSERT INTO `+FieldsTable+` (object_name, field_name, field_label, data_type, last_seen, last_updated_in_sf, is_deleted)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ObjectName, f.FieldName, f.Label, f.DataType, now, now, false)
		if err != nil {
			return Unchanged, fmt.Errorf("failed to insert field %s.%s: %w", f.ObjectName, f.FieldName, err)
		}
		return Inserted, nil

	case err != nil:
		return Unchanged, fmt.Errorf("failed to look up field %s.%s: %w", f.ObjectName, f.FieldName, err)
	}

	if label.String != f.Label || dataType.String != f.DataType {
		_, err = s.exec(ctx, `
UPDATE `+FieldsTable+`
SET field_label = ?, data_type = ?, last_seen = ?, last_updated_in_sf = ?, is_deleted = ?
WHERE object_name = ? AND field_name = ?`,
			f.Label, f.DataType, now, now, false, f.ObjectName, f.FieldName)
		if err != nil {
			return Unchanged, fmt.Errorf("failed to update field %s.%s: %w", f.ObjectName, f.FieldName, err)
		}
		return Updated, nil
	}

	_, err = s.exec(ctx,
		"UPDATE "+FieldsTable+" SET last_seen = ?, is_deleted = ? WHERE object_name = ? AND field_name = ?",
		now, false, f.ObjectName, f.FieldName)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to touch field %s.%s: %w", f.ObjectName, f.FieldName, err)
	}
	return Unchanged, nil
}

// UpsertFieldUsage inserts or refreshes a component dependency. Usage rows
// carry no deletion flag and persist once written.
func (s *Store) UpsertFieldUsage(ctx context.Context, u FieldUsage) (UpsertResult, error) {
	now := s.now()

	var refType sql.NullString
	err := s.queryRow(ctx, `
SELECT ref_component_type FROM `+FieldUsageTable+`
WHERE component_type = ? AND component_name = ? AND ref_component_name = ?`,
		u.ComponentType, u.ComponentName, u.RefComponentName,
	).Scan(&refType)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.exec(ctx, `
INSERT INTO `+FieldUsageTable+` (component_type, component_name, ref_component_name, ref_component_type, last_seen)
VALUES (?, ?, ?, ?, ?)`,
			u.ComponentType, u.ComponentName, u.RefComponentName, u.RefComponentType, now)
		if err != nil {
			return Unchanged, fmt.Errorf("failed to insert field usage %s %s -> %s: %w", u.ComponentType, u.ComponentName, u.RefComponentName, err)
		}
		return Inserted, nil

	case err != nil:
		return Unchanged, fmt.Errorf("failed to look up field usage %s %s -> %s: %w", u.ComponentType, u.ComponentName, u.RefComponentName, err)
	}

	result := Unchanged
	if refType.String != u.RefComponentType {
		result = Updated
	}

	_, err = s.exec(ctx, `
UPDATE `+FieldUsageTable+`
SET ref_component_type = ?, last_seen = ?
WHERE component_type = ? AND component_name = ? AND ref_component_name = ?`,
		u.RefComponentType, now, u.ComponentType, u.ComponentName, u.RefComponentName)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to update field usage %s %s -> %s: %w", u.ComponentType, u.ComponentName, u.RefComponentName, err)
	}
	return result, nil
}

// UpsertFlowFieldUsage inserts or refreshes a flow-to-field reference
func (s *Store) UpsertFlowFieldUsage(ctx context.Context, u FlowFieldUsage) (UpsertResult, error) {
	now := s.now()

	var status sql.NullString
	err := s.queryRow(ctx,
		"SELECT flow_status FROM "+FlowFieldUsageTable+" WHERE flow_name = ? AND field_name = ?",
		u.FlowName, u.FieldName,
	).Scan(&status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.exec(ctx,
			"INSERT INTO "+FlowFieldUsageTable+" (flow_name, field_name, flow_status, last_seen) VALUES (?, ?, ?, ?)",
			u.FlowName, u.FieldName, u.FlowStatus, now)
		if err != nil {
			return Unchanged, fmt.Errorf("failed to insert flow usage %s -> %s: %w", u.FlowName, u.FieldName, err)
		}
		return Inserted, nil

	case err != nil:
		return Unchanged, fmt.Errorf("failed to look up flow usage %s -> %s: %w", u.FlowName, u.FieldName, err)
	}

	result := Unchanged
	if status.String != u.FlowStatus {
		result = Updated
	}

	_, err = s.exec(ctx,
		"UPDATE "+FlowFieldUsageTable+" SET flow_status = ?, last_seen = ? WHERE flow_name = ? AND field_name = ?",
		u.FlowStatus, now, u.FlowName, u.FieldName)
	if err != nil {
		return Unchanged, fmt.Errorf("failed to update flow usage %s -> %s: %w", u.FlowName, u.FieldName, err)
	}
	return result, nil
}
