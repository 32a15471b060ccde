// Package task holds the durable record of asynchronous ledger operations:
// who asked for them, their serialized request payload, and their eventual
// outcome. The queue is protocol-agnostic; workers dispatch on the task type
// and decode the payload themselves.
package task

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskType tags the operation a pending task represents. Values are part of
// the persisted schema and must not be renumbered.
type TaskType int

const (
	TypeNone           TaskType = 0
	TypeGroupCreate    TaskType = 1
	TypeGroupAddMember TaskType = 2
	TypeCreation       TaskType = 10
	TypeTransfer       TaskType = 11
	TypeTopicCreate    TaskType = 20
	TypeTopicMessage   TaskType = 21
	TypeAccountCreate  TaskType = 25
)

var taskTypeNames = map[TaskType]string{
	TypeNone:           "none",
	TypeGroupCreate:    "group_create",
	TypeGroupAddMember: "group_add_member",
	TypeCreation:       "creation",
	TypeTransfer:       "transfer",
	TypeTopicCreate:    "topic_create",
	TypeTopicMessage:   "topic_message",
	TypeAccountCreate:  "account_create",
}

func (t TaskType) String() string {
	if name, ok := taskTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is a known task type other than none.
func (t TaskType) Valid() bool {
	_, ok := taskTypeNames[t]
	return ok && t != TypeNone
}

// IsLedgerTask reports whether the task submits an operation to the external
// ledger (as opposed to a purely local group/value operation).
func (t TaskType) IsLedgerTask() bool {
	return t >= TypeTopicCreate
}

// PendingTask is one in-flight asynchronous ledger operation. TaskType and
// Request are write-once at creation; only FinishedAt and Result mutate
// afterwards, and FinishedAt is set at most once.
type PendingTask struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"type:uuid;index"`
	TaskType   TaskType  `gorm:"index"`
	Request    []byte
	CreatedAt  time.Time
	FinishedAt *time.Time `gorm:"index"`
	Result     string     `gorm:"type:text"`
}

// Finished reports whether the task reached a terminal outcome.
func (p *PendingTask) Finished() bool {
	return p != nil && p.FinishedAt != nil
}

// AutoMigrate creates or updates the pending task schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PendingTask{})
}
