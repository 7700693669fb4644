package ormkit

import (
	"time"
)

// Timestamper is implemented by models that maintain their own timestamps.
// Insert and Update call Touch before binding the row.
type Timestamper interface {
	Touch(inserting bool)
}

// BaseModel provides common fields for all models: ID and timestamps.
// Embed this in your model structs for standard ID and timestamp handling.
//
// Usage:
//
//	type User struct {
//	    meta.Table `orm:"table:users,alias:u"`
//	    ormkit.BaseModel
//	    Email string `orm:"email,notnull,unique"`
//	}
type BaseModel struct {
	ID        string    `orm:"id,pk,autoid,length:36"`
	CreatedAt time.Time `orm:"created_at,notnull,default:{SYSTEM_UTC}"`
	UpdatedAt time.Time `orm:"updated_at,notnull,default:{SYSTEM_UTC}"`
}

// Touch sets UpdatedAt, and CreatedAt when inserting a row without one.
func (m *BaseModel) Touch(inserting bool) {
	touch(&m.CreatedAt, &m.UpdatedAt, inserting)
}

// SoftDeletableModel adds soft delete capability to models.
// Embed this alongside BaseModel for soft delete functionality.
//
// When querying, add a filter to exclude soft-deleted records:
//
//	ormkit.FindAll[User](ctx, db, "deleted_at IS NULL")
type SoftDeletableModel struct {
	DeletedAt *time.Time `orm:"deleted_at,null"`
}

// IsDeleted returns true if the model has been soft deleted.
func (m *SoftDeletableModel) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MarkDeleted sets DeletedAt to now. Persist it with Update.
func (m *SoftDeletableModel) MarkDeleted() {
	now := time.Now().UTC()
	m.DeletedAt = &now
}

// VersionedModel adds optimistic locking capability to models.
//
// When updating, include version check:
//
//	n, err := db.Exec(ctx,
//	    "UPDATE users SET name = $1, version = version + 1 WHERE id = $2 AND version = $3",
//	    user.Name, user.ID, user.Version)
//	if n == 0 {
//	    // Conflict detected - record was modified by another process
//	}
type VersionedModel struct {
	Version int64 `orm:"version,notnull,default:1"`
}

// TimestampedModel provides timestamps without the ID field.
//
// Usage:
//
//	type AuditLog struct {
//	    meta.Table `orm:"table:audit_logs"`
//	    ID         int64 `orm:"id,pk,autoincrement"`
//	    ormkit.TimestampedModel
//	    Action string `orm:"action,notnull"`
//	}
type TimestampedModel struct {
	CreatedAt time.Time `orm:"created_at,notnull,default:{SYSTEM_UTC}"`
	UpdatedAt time.Time `orm:"updated_at,notnull,default:{SYSTEM_UTC}"`
}

// Touch sets UpdatedAt, and CreatedAt when inserting a row without one.
func (m *TimestampedModel) Touch(inserting bool) {
	touch(&m.CreatedAt, &m.UpdatedAt, inserting)
}

// FullModel combines BaseModel, SoftDeletableModel, and VersionedModel.
type FullModel struct {
	ID        string     `orm:"id,pk,autoid,length:36"`
	CreatedAt time.Time  `orm:"created_at,notnull,default:{SYSTEM_UTC}"`
	UpdatedAt time.Time  `orm:"updated_at,notnull,default:{SYSTEM_UTC}"`
	DeletedAt *time.Time `orm:"deleted_at,null"`
	Version   int64      `orm:"version,notnull,default:1"`
}

// IsDeleted returns true if the model has been soft deleted.
func (m *FullModel) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Touch sets UpdatedAt, and CreatedAt when inserting a row without one.
// Inserting also starts Version at 1.
func (m *FullModel) Touch(inserting bool) {
	touch(&m.CreatedAt, &m.UpdatedAt, inserting)
	if inserting && m.Version == 0 {
		m.Version = 1
	}
}

func touch(created, updated *time.Time, inserting bool) {
	now := time.Now().UTC()
	if inserting && created.IsZero() {
		*created = now
	}
	*updated = now
}

var (
	_ Timestamper = (*BaseModel)(nil)
	_ Timestamper = (*TimestampedModel)(nil)
	_ Timestamper = (*FullModel)(nil)
)
