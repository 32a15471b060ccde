// Package ledger implements the request/response protocol against the
// consensus ledger network: canonical message encoding, detached ed25519
// signatures, and the two-phase query / single-phase transaction submission
// flows with failover across candidate nodes.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EntityID identifies a ledger entity (account, topic) as shard.realm.num.
type EntityID struct {
	Shard uint64 `json:"shard"`
	Realm uint64 `json:"realm"`
	Num   uint64 `json:"num"`
}

// ParseEntityID parses the "shard.realm.num" form.
func ParseEntityID(s string) (EntityID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return EntityID{}, fmt.Errorf("ledger: invalid entity id %q", s)
	}
	var out [3]uint64
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return EntityID{}, fmt.Errorf("ledger: invalid entity id %q: %w", s, err)
		}
		out[i] = v
	}
	return EntityID{Shard: out[0], Realm: out[1], Num: out[2]}, nil
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

// IsZero reports whether the id is the unset value.
func (id EntityID) IsZero() bool {
	return id.Shard == 0 && id.Realm == 0 && id.Num == 0
}

// Node is one endpoint of the ledger network able to serve a request.
// The candidate list is read-only shared configuration.
type Node struct {
	AccountID EntityID `yaml:"account_id" json:"account_id"`
	BaseURL   string   `yaml:"url" json:"url"`
}

// ResponseCode is the ledger-defined outcome of a precheck or a query,
// distinct from transport-level success or failure.
type ResponseCode int32

const (
	CodeOK                       ResponseCode = 0
	CodeInvalidTransaction       ResponseCode = 1
	CodePayerAccountNotFound     ResponseCode = 2
	CodeInvalidNodeAccount       ResponseCode = 3
	CodeTransactionExpired       ResponseCode = 4
	CodeDuplicateTransaction     ResponseCode = 5
	CodeBusy                     ResponseCode = 6
	CodeNotSupported             ResponseCode = 7
	CodeInvalidSignature         ResponseCode = 8
	CodeInsufficientTxFee        ResponseCode = 9
	CodeInsufficientPayerBalance ResponseCode = 10
	CodeInvalidTopicID           ResponseCode = 150
	CodeTopicExpired             ResponseCode = 162
)

var responseCodeNames = map[ResponseCode]string{
	CodeOK:                       "OK",
	CodeInvalidTransaction:       "INVALID_TRANSACTION",
	CodePayerAccountNotFound:     "PAYER_ACCOUNT_NOT_FOUND",
	CodeInvalidNodeAccount:       "INVALID_NODE_ACCOUNT",
	CodeTransactionExpired:       "TRANSACTION_EXPIRED",
	CodeDuplicateTransaction:     "DUPLICATE_TRANSACTION",
	CodeBusy:                     "BUSY",
	CodeNotSupported:             "NOT_SUPPORTED",
	CodeInvalidSignature:         "INVALID_SIGNATURE",
	CodeInsufficientTxFee:        "INSUFFICIENT_TX_FEE",
	CodeInsufficientPayerBalance: "INSUFFICIENT_PAYER_BALANCE",
	CodeInvalidTopicID:           "INVALID_TOPIC_ID",
	CodeTopicExpired:             "TOPIC_EXPIRED",
}

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_%d", int32(c))
}

// ResponseType selects which phase of the query protocol a request belongs to.
type ResponseType string

const (
	// CostAnswer asks the node what the query will cost without answering it.
	CostAnswer ResponseType = "COST_ANSWER"
	// AnswerOnly asks for the actual answer, with the fee set from the cost phase.
	AnswerOnly ResponseType = "ANSWER_ONLY"
)

// TopicInfo is the consensus topic state returned by a get-topic-info query.
type TopicInfo struct {
	Memo            string    `json:"memo,omitempty"`
	AutoRenewPeriod int64     `json:"auto_renew_period"`
	ExpirationTime  time.Time `json:"expiration_time"`
	SequenceNumber  uint64    `json:"sequence_number"`
}

// TransactionReceipt reports the outcome of a submitted transaction plus any
// entity the network created for it.
type TransactionReceipt struct {
	Status    ResponseCode `json:"status"`
	TopicID   *EntityID    `json:"topic_id,omitempty"`
	AccountID *EntityID    `json:"account_id,omitempty"`
}

// TransactionResponse is a node's reply to a transaction submission.
type TransactionResponse struct {
	Code    ResponseCode        `json:"code"`
	Receipt *TransactionReceipt `json:"receipt,omitempty"`
}

// QueryResponse is a node's reply to either phase of a query. Cost is only
// meaningful for the COST_ANSWER phase, TopicInfo for ANSWER_ONLY.
type QueryResponse struct {
	Code      ResponseCode `json:"code"`
	Cost      uint64       `json:"cost,omitempty"`
	TopicInfo *TopicInfo   `json:"topic_info,omitempty"`
}
