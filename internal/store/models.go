package store

import (
	"database/sql"
	"time"
)

// UpsertResult reports what an upsert did to the stored row
type UpsertResult int

const (
	// Unchanged means the row existed with equal attributes; only last_seen moved
	Unchanged UpsertResult = iota
	// Inserted means the key was new
	Inserted
	// Updated means compared attributes differed and were overwritten
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Field is one field of one Salesforce object
type Field struct {
	ObjectName      string
	FieldName       string
	Label           string
	DataType        string
	LastSeen        time.Time
	LastUpdatedInSF sql.NullTime
	IsDeleted       bool
}

// FieldUsage is a metadata component that references a field
type FieldUsage struct {
	ComponentType    string
	ComponentName    string
	RefComponentName string
	RefComponentType string
	LastSeen         time.Time
}

// FlowFieldUsage links a flow to a field it references
type FlowFieldUsage struct {
	FlowName   string
	FieldName  string
	FlowStatus string
	LastSeen   time.Time
}
