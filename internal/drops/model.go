package drops

// Drop is the grouping key for one day's batch of notes. Rows are created
// idempotently on first materialization and never mutated.
type Drop struct {
	DropID string `gorm:"column:drop_id;primaryKey;size:10"`
}

// TableName provides the explicit table binding for GORM.
func (Drop) TableName() string {
	return "drops"
}

// Note is a published note inside a drop. Hearts never go below zero.
type Note struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Text   string `gorm:"column:text;type:text;not null"`
	Hearts int64  `gorm:"column:hearts;not null;default:0"`
	DropID string `gorm:"column:drop_id;size:10;not null;index:idx_notes_drop"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
