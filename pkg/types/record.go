package types

// Record is implemented by every persistable value. Implementations are
// pointer types; RecordID is 0 until the record is first saved.
type Record interface {
	RecordID() int64
	SetRecordID(id int64)
	RecordType() *RecordType
}

// Model carries the primary key and is meant to be embedded in record structs.
type Model struct {
	ID int64
}

// RecordID returns the primary key, 0 when not yet persisted.
func (m *Model) RecordID() int64 { return m.ID }

// SetRecordID sets the primary key.
func (m *Model) SetRecordID(id int64) { m.ID = id }

// IsNew reports whether the record has not been persisted yet.
func (m *Model) IsNew() bool { return m.ID == 0 }
