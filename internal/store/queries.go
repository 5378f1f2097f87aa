package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetField returns a stored field by key
func (s *Store) GetField(ctx context.Context, objectName, fieldName string) (*Field, error) {
	f := &Field{ObjectName: objectName, FieldName: fieldName}
	var label, dataType sql.NullString

	err := s.queryRow(ctx, `
SELECT field_label, data_type, last_seen, last_updated_in_sf, is_deleted
FROM `+FieldsTable+`
WHERE object_name = ? AND field_name = ?`,
		objectName, fieldName,
	).Scan(&label, &dataType, &f.LastSeen, &f.LastUpdatedInSF, &f.IsDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field %s.%s: %w", objectName, fieldName, err)
	}

	f.Label = label.String
	f.DataType = dataType.String
	return f, nil
}

// ListFields returns every stored field ordered by object then field name
func (s *Store) ListFields(ctx context.Context) ([]Field, error) {
	rows, err := s.query(ctx, `
SELECT object_name, field_name, field_label, data_type, last_seen, last_updated_in_sf, is_deleted
FROM `+FieldsTable+`
ORDER BY object_name, field_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		var label, dataType sql.NullString
		if err := rows.Scan(&f.ObjectName, &f.FieldName, &label, &dataType, &f.LastSeen, &f.LastUpdatedInSF, &f.IsDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		f.Label = label.String
		f.DataType = dataType.String
		fields = append(fields, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fields: %w", err)
	}
	return fields, nil
}

// GetFieldUsage returns a stored component dependency by key
func (s *Store) GetFieldUsage(ctx context.Context, componentType, componentName, refComponentName string) (*FieldUsage, error) {
	u := &FieldUsage{
		ComponentType:    componentType,
		ComponentName:    componentName,
		RefComponentName: refComponentName,
	}
	var refType sql.NullString

	err := s.queryRow(ctx, `
SELECT ref_component_type, last_seen FROM `+FieldUsageTable+`
WHERE component_type = ? AND component_name = ? AND ref_component_name = ?`,
		componentType, componentName, refComponentName,
	).Scan(&refType, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get field usage: %w", err)
	}

	u.RefComponentType = refType.String
	return u, nil
}

// ListFlowFieldUsage returns every flow-to-field reference ordered by flow
// name then field name
func (s *Store) ListFlowFieldUsage(ctx context.Context) ([]FlowFieldUsage, error) {
	rows, err := s.query(ctx, `
SELECT flow_name, field_name, flow_status, last_seen
FROM `+FlowFieldUsageTable+`
ORDER BY flow_name, field_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow field usage: %w", err)
	}
	defer rows.Close()

	var usages []FlowFieldUsage
	for rows.Next() {
		var u FlowFieldUsage
		var status sql.NullString
		if err := rows.Scan(&u.FlowName, &u.FieldName, &status, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan flow field usage: %w", err)
		}
		u.FlowStatus = status.String
		usages = append(usages, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow field usage: %w", err)
	}
	return usages, nil
}
