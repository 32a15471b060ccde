package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// ConsensusCreateTopic creates a new consensus topic. The auto-renew account
// pays for topic renewal when the period elapses.
type ConsensusCreateTopic struct {
	Memo             string   `json:"memo,omitempty"`
	AutoRenewAccount EntityID `json:"auto_renew_account"`
	AutoRenewPeriod  int64    `json:"auto_renew_period"`
}

// ConsensusSubmitMessage appends a message to an existing topic.
type ConsensusSubmitMessage struct {
	Topic   EntityID `json:"topic"`
	Message []byte   `json:"message"`
}

// CryptoCreateAccount creates a ledger account controlled by the given key.
type CryptoCreateAccount struct {
	Key            []byte `json:"key"`
	InitialBalance uint64 `json:"initial_balance"`
}

// ConsensusGetTopicInfo queries the current state of a topic.
type ConsensusGetTopicInfo struct {
	Topic EntityID `json:"topic"`
}

// TransactionBody carries one state-changing operation. Exactly one of the
// operation fields must be set.
type TransactionBody struct {
	TransactionID string `json:"transaction_id"`
	Payer         EntityID
	Fee           uint64
	ValidSeconds  int64
	Memo          string

	CreateTopic   *ConsensusCreateTopic
	SubmitMessage *ConsensusSubmitMessage
	CreateAccount *CryptoCreateAccount
}

// Canonical returns the canonical JSON encoding used for signing. Two bodies
// with the same field values always produce identical bytes; changing the fee
// changes the encoding, which is why the second query phase must re-sign.
func (b *TransactionBody) Canonical() ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("ledger: nil transaction body")
	}
	txID := strings.TrimSpace(b.TransactionID)
	if txID == "" {
		return nil, fmt.Errorf("ledger: transaction id required")
	}
	if b.Payer.IsZero() {
		return nil, fmt.Errorf("ledger: payer required")
	}
	ops := 0
	for _, set := range []bool{b.CreateTopic != nil, b.SubmitMessage != nil, b.CreateAccount != nil} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return nil, fmt.Errorf("ledger: transaction body must carry exactly one operation, has %d", ops)
	}
	validSeconds := b.ValidSeconds
	if validSeconds == 0 {
		validSeconds = 120
	}
	canonical := struct {
		TransactionID string                  `json:"transaction_id"`
		Payer         string                  `json:"payer"`
		Fee           uint64                  `json:"fee"`
		ValidSeconds  int64                   `json:"valid_seconds"`
		Memo          string                  `json:"memo,omitempty"`
		CreateTopic   *ConsensusCreateTopic   `json:"create_topic,omitempty"`
		SubmitMessage *ConsensusSubmitMessage `json:"submit_message,omitempty"`
		CreateAccount *CryptoCreateAccount    `json:"create_account,omitempty"`
	}{
		TransactionID: txID,
		Payer:         b.Payer.String(),
		Fee:           b.Fee,
		ValidSeconds:  validSeconds,
		Memo:          strings.TrimSpace(b.Memo),
		CreateTopic:   b.CreateTopic,
		SubmitMessage: b.SubmitMessage,
		CreateAccount: b.CreateAccount,
	}
	return json.Marshal(canonical)
}

// Digest computes the blake3-256 hash over the canonical encoding.
func (b *TransactionBody) Digest() ([]byte, error) {
	canonical, err := b.Canonical()
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(canonical)
	return sum[:], nil
}

// QueryBody carries one read-only operation plus the response type that
// selects the protocol phase. Exactly one operation field must be set.
type QueryBody struct {
	Payer        EntityID
	Fee          uint64
	ResponseType ResponseType

	GetTopicInfo *ConsensusGetTopicInfo
}

// Canonical returns the canonical JSON encoding used for signing.
func (q *QueryBody) Canonical() ([]byte, error) {
	if q == nil {
		return nil, fmt.Errorf("ledger: nil query body")
	}
	if q.Payer.IsZero() {
		return nil, fmt.Errorf("ledger: payer required")
	}
	switch q.ResponseType {
	case CostAnswer, AnswerOnly:
	default:
		return nil, fmt.Errorf("ledger: invalid response type %q", q.ResponseType)
	}
	if q.GetTopicInfo == nil {
		return nil, fmt.Errorf("ledger: query body must carry exactly one operation")
	}
	canonical := struct {
		Payer        string                 `json:"payer"`
		Fee          uint64                 `json:"fee"`
		ResponseType ResponseType           `json:"response_type"`
		GetTopicInfo *ConsensusGetTopicInfo `json:"get_topic_info,omitempty"`
	}{
		Payer:        q.Payer.String(),
		Fee:          q.Fee,
		ResponseType: q.ResponseType,
		GetTopicInfo: q.GetTopicInfo,
	}
	return json.Marshal(canonical)
}

// Digest computes the blake3-256 hash over the canonical encoding.
func (q *QueryBody) Digest() ([]byte, error) {
	canonical, err := q.Canonical()
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(canonical)
	return sum[:], nil
}

// SignedTransaction is a transaction body in canonical form with its
// detached signature. The bytes are immutable once signed.
type SignedTransaction struct {
	Body      []byte `json:"body"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// SignedQuery is a query body in canonical form with its detached signature.
type SignedQuery struct {
	Body      []byte `json:"body"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}
