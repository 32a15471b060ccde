// Package gateway composes the signer, the request client, and the task
// store into user-level ledger operations: creating consensus topics,
// submitting topic messages, and refreshing persisted topic state from the
// network.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NetworkType selects which ledger network an account belongs to.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// Account references a ledger account the gateway can pay and sign with.
// AccountID is the network-assigned shard.realm.num identifier; KeystorePath
// points at the encrypted key material controlling the account.
type Account struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID   `gorm:"type:uuid;index"`
	AccountID    string      `gorm:"size:64;index"`
	KeystorePath string      `gorm:"size:255"`
	Balance      uint64      `gorm:"not null;default:0"`
	Network      NetworkType `gorm:"size:16;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Topic mirrors one consensus topic. TopicID stays empty until the network
// confirms creation; AutoRenewPeriod, CurrentTimeout, and SequenceNumber are
// refreshed from topic-info queries.
type Topic struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name               string    `gorm:"size:128"`
	TopicID            string    `gorm:"size:64;index"`
	AutoRenewAccountID uuid.UUID `gorm:"type:uuid;index"`
	AutoRenewPeriod    int64
	CurrentTimeout     time.Time
	SequenceNumber     uint64
	GroupID            uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AutoMigrate creates or updates the gateway schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &Topic{})
}

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("gateway: not found")

// CreateAccount persists a new account reference.
func CreateAccount(db *gorm.DB, userID uuid.UUID, accountID, keystorePath string, network NetworkType) (*Account, error) {
	account := Account{
		ID:           uuid.New(),
		UserID:       userID,
		AccountID:    accountID,
		KeystorePath: keystorePath,
		Network:      network,
	}
	if err := db.Create(&account).Error; err != nil {
		return nil, fmt.Errorf("gateway: create account: %w", err)
	}
	return &account, nil
}

// AccountsBy loads all accounts whose field matches value.
func AccountsBy(db *gorm.DB, field string, value any) ([]Account, error) {
	var accounts []Account
	if err := db.Where(fmt.Sprintf("%s = ?", field), value).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("gateway: load accounts: %w", err)
	}
	return accounts, nil
}

// ListAccounts returns every known account.
func ListAccounts(db *gorm.DB) ([]Account, error) {
	var accounts []Account
	if err := db.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("gateway: list accounts: %w", err)
	}
	return accounts, nil
}

// LoadAccount fetches one account by row id.
func LoadAccount(db *gorm.DB, id uuid.UUID) (*Account, error) {
	var account Account
	if err := db.First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateway: load account: %w", err)
	}
	return &account, nil
}

// CreateTopicRecord persists a new topic row awaiting network creation.
func CreateTopicRecord(db *gorm.DB, name string, autoRenewAccountID uuid.UUID, autoRenewPeriod int64, groupID uuid.UUID) (*Topic, error) {
	topic := Topic{
		ID:                 uuid.New(),
		Name:               name,
		AutoRenewAccountID: autoRenewAccountID,
		AutoRenewPeriod:    autoRenewPeriod,
		GroupID:            groupID,
	}
	if err := db.Create(&topic).Error; err != nil {
		return nil, fmt.Errorf("gateway: create topic: %w", err)
	}
	return &topic, nil
}

// LoadTopic fetches one topic by row id.
func LoadTopic(db *gorm.DB, id uuid.UUID) (*Topic, error) {
	var topic Topic
	if err := db.First(&topic, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateway: load topic: %w", err)
	}
	return &topic, nil
}

// ListTopics returns every known topic.
func ListTopics(db *gorm.DB) ([]Topic, error) {
	var topics []Topic
	if err := db.Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("gateway: list topics: %w", err)
	}
	return topics, nil
}
