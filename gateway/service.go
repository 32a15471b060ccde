package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ledgergate/ledger"
	"ledgergate/observability"
	"ledgergate/task"
)

// State tracks a submitted operation through its lifecycle. Accepted is
// terminal success; Rejected and TransportFailed are terminal failures and
// are never resubmitted automatically. A retry means a fresh task and a
// fresh state machine.
type State string

const (
	StateCreated         State = "CREATED"
	StateSigned          State = "SIGNED"
	StateSubmitted       State = "SUBMITTED"
	StateAccepted        State = "ACCEPTED"
	StateRejected        State = "REJECTED"
	StateTransportFailed State = "TRANSPORT_FAILED"
)

// ErrPersistence indicates a database update touched an unexpected number of
// rows. The operation is aborted without partial recovery.
var ErrPersistence = errors.New("gateway: persistence update anomaly")

// DefaultTransactionFee is the fee attached to transactions before
// submission. Queries derive their fee from the cost phase instead.
const DefaultTransactionFee uint64 = 100_000

// TopicCreateRequest is the payload enqueued for a topic-create task.
type TopicCreateRequest struct {
	TopicRowID    uuid.UUID `json:"topic_row_id"`
	OperatorRowID uuid.UUID `json:"operator_row_id"`
}

// Encode serializes the request for storage in a pending task.
func (r TopicCreateRequest) Encode() ([]byte, error) { return json.Marshal(r) }

// DecodeTopicCreateRequest parses a stored topic-create payload.
func DecodeTopicCreateRequest(raw []byte) (TopicCreateRequest, error) {
	var req TopicCreateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return TopicCreateRequest{}, fmt.Errorf("gateway: decode topic-create payload: %w", err)
	}
	return req, nil
}

// TopicMessageRequest is the payload enqueued for a topic-message task.
type TopicMessageRequest struct {
	TopicRowID    uuid.UUID `json:"topic_row_id"`
	OperatorRowID uuid.UUID `json:"operator_row_id"`
	Message       []byte    `json:"message"`
}

// Encode serializes the request for storage in a pending task.
func (r TopicMessageRequest) Encode() ([]byte, error) { return json.Marshal(r) }

// DecodeTopicMessageRequest parses a stored topic-message payload.
func DecodeTopicMessageRequest(raw []byte) (TopicMessageRequest, error) {
	var req TopicMessageRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return TopicMessageRequest{}, fmt.Errorf("gateway: decode topic-message payload: %w", err)
	}
	return req, nil
}

// SignerFor resolves the signer controlling an account's key material.
type SignerFor func(account *Account) (*ledger.Signer, error)

// Service realises user-level ledger operations end to end: build the
// request from persisted configuration, sign it, submit it, and persist the
// confirmed result.
type Service struct {
	db        *gorm.DB
	client    *ledger.Client
	nodes     []ledger.Node
	signerFor SignerFor
	logger    *slog.Logger
	metrics   *observability.GatewayMetrics
	now       func() time.Time
}

// ServiceOption customises the service instance.
type ServiceOption func(*Service)

// WithServiceLogger supplies a structured logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithServiceMetrics overrides the default metrics registry.
func WithServiceMetrics(m *observability.GatewayMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithServiceClock sets the function used to derive timestamps.
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewService wires the orchestrator over its collaborators. The candidate
// node list is shared read-only configuration.
func NewService(db *gorm.DB, client *ledger.Client, nodes []ledger.Node, signerFor SignerFor, opts ...ServiceOption) *Service {
	s := &Service{
		db:        db,
		client:    client,
		nodes:     nodes,
		signerFor: signerFor,
		logger:    slog.Default(),
		metrics:   observability.Gateway(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTopic builds a topic-creation transaction from the persisted topic
// configuration, signs it with the operator account's key, and submits it.
// On an OK precheck the receipt is returned and the network-assigned topic
// id persisted; a non-OK precheck or a transport failure is terminal and is
// not retried here.
func (s *Service) CreateTopic(ctx context.Context, topicRowID, operatorRowID uuid.UUID) (*ledger.TransactionReceipt, error) {
	topic, err := LoadTopic(s.db, topicRowID)
	if err != nil {
		return nil, err
	}
	operator, err := LoadAccount(s.db, operatorRowID)
	if err != nil {
		return nil, err
	}
	payer, err := ledger.ParseEntityID(operator.AccountID)
	if err != nil {
		return nil, fmt.Errorf("gateway: operator account id: %w", err)
	}

	autoRenew := payer
	if topic.AutoRenewAccountID != uuid.Nil && topic.AutoRenewAccountID != operatorRowID {
		renewAccount, err := LoadAccount(s.db, topic.AutoRenewAccountID)
		if err != nil {
			return nil, fmt.Errorf("gateway: auto-renew account: %w", err)
		}
		if autoRenew, err = ledger.ParseEntityID(renewAccount.AccountID); err != nil {
			return nil, fmt.Errorf("gateway: auto-renew account id: %w", err)
		}
	}

	body := &ledger.TransactionBody{
		TransactionID: uuid.NewString(),
		Payer:         payer,
		Fee:           DefaultTransactionFee,
		Memo:          topic.Name,
		CreateTopic: &ledger.ConsensusCreateTopic{
			Memo:             topic.Name,
			AutoRenewAccount: autoRenew,
			AutoRenewPeriod:  topic.AutoRenewPeriod,
		},
	}
	s.logger.Info("topic create prepared", "topic", topicRowID, "state", StateCreated)

	signer, err := s.signerFor(operator)
	if err != nil {
		return nil, fmt.Errorf("gateway: signing phase: %w", err)
	}
	signed, err := signer.SignTransaction(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: signing phase: %w", err)
	}
	s.logger.Info("topic create signed", "topic", topicRowID, "state", StateSigned)

	receipt, err := s.client.SubmitTransaction(ctx, signed, s.nodes)
	if err != nil {
		if code, ok := ledger.IsRejection(err); ok {
			s.logger.Warn("topic create rejected", "topic", topicRowID, "code", code.String(), "state", StateRejected)
			return nil, fmt.Errorf("gateway: submission phase: %w", err)
		}
		s.logger.Warn("topic create transport failure", "topic", topicRowID, "state", StateTransportFailed, "err", err)
		return nil, fmt.Errorf("gateway: submission phase: %w", err)
	}
	s.logger.Info("topic create accepted", "topic", topicRowID, "state", StateAccepted)

	if receipt.TopicID != nil {
		res := s.db.WithContext(ctx).Model(&Topic{}).
			Where("id = ?", topic.ID).
			Update("topic_id", receipt.TopicID.String())
		if res.Error != nil {
			return receipt, fmt.Errorf("gateway: persistence phase: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return receipt, fmt.Errorf("%w: topic id update affected %d rows", ErrPersistence, res.RowsAffected)
		}
	}
	return receipt, nil
}

// SubmitTopicMessage appends a message to an already-created topic via the
// operator account.
func (s *Service) SubmitTopicMessage(ctx context.Context, topicRowID, operatorRowID uuid.UUID, message []byte) (*ledger.TransactionReceipt, error) {
	topic, err := LoadTopic(s.db, topicRowID)
	if err != nil {
		return nil, err
	}
	if topic.TopicID == "" {
		return nil, fmt.Errorf("gateway: topic %s has not been created on the ledger", topicRowID)
	}
	topicEntity, err := ledger.ParseEntityID(topic.TopicID)
	if err != nil {
		return nil, fmt.Errorf("gateway: topic id: %w", err)
	}
	operator, err := LoadAccount(s.db, operatorRowID)
	if err != nil {
		return nil, err
	}
	payer, err := ledger.ParseEntityID(operator.AccountID)
	if err != nil {
		return nil, fmt.Errorf("gateway: operator account id: %w", err)
	}

	body := &ledger.TransactionBody{
		TransactionID: uuid.NewString(),
		Payer:         payer,
		Fee:           DefaultTransactionFee,
		SubmitMessage: &ledger.ConsensusSubmitMessage{
			Topic:   topicEntity,
			Message: message,
		},
	}
	signer, err := s.signerFor(operator)
	if err != nil {
		return nil, fmt.Errorf("gateway: signing phase: %w", err)
	}
	signed, err := signer.SignTransaction(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: signing phase: %w", err)
	}
	receipt, err := s.client.SubmitTransaction(ctx, signed, s.nodes)
	if err != nil {
		return nil, fmt.Errorf("gateway: submission phase: %w", err)
	}
	return receipt, nil
}

// RefreshTopicInfo runs the two-phase topic-info query and persists the
// returned auto-renew period, expiration, and sequence number in a single
// update. On any failure the stored model is left untouched; an update that
// affects more than one row is treated as a persistence anomaly.
func (s *Service) RefreshTopicInfo(ctx context.Context, topicRowID uuid.UUID) error {
	topic, err := LoadTopic(s.db, topicRowID)
	if err != nil {
		return err
	}
	if topic.TopicID == "" {
		return fmt.Errorf("gateway: topic %s has not been created on the ledger", topicRowID)
	}
	topicEntity, err := ledger.ParseEntityID(topic.TopicID)
	if err != nil {
		return fmt.Errorf("gateway: topic id: %w", err)
	}
	payerAccount, err := LoadAccount(s.db, topic.AutoRenewAccountID)
	if err != nil {
		return fmt.Errorf("gateway: auto-renew account: %w", err)
	}
	payer, err := ledger.ParseEntityID(payerAccount.AccountID)
	if err != nil {
		return fmt.Errorf("gateway: payer account id: %w", err)
	}

	signer, err := s.signerFor(payerAccount)
	if err != nil {
		return fmt.Errorf("gateway: signing phase: %w", err)
	}
	query := &ledger.QueryBody{
		Payer:        payer,
		GetTopicInfo: &ledger.ConsensusGetTopicInfo{Topic: topicEntity},
	}
	resp, err := s.client.SubmitQuery(ctx, query, signer, s.nodes)
	if err != nil {
		return fmt.Errorf("gateway: query phase: %w", err)
	}
	if resp.TopicInfo == nil {
		return fmt.Errorf("gateway: query phase: answer carried no topic info")
	}

	res := s.db.WithContext(ctx).Model(&Topic{}).
		Where("id = ?", topic.ID).
		Updates(map[string]any{
			"auto_renew_period": resp.TopicInfo.AutoRenewPeriod,
			"current_timeout":   resp.TopicInfo.ExpirationTime,
			"sequence_number":   resp.TopicInfo.SequenceNumber,
		})
	if res.Error != nil {
		return fmt.Errorf("gateway: persistence phase: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: topic info update affected %d rows", ErrPersistence, res.RowsAffected)
	}
	return nil
}

// ProcessTask executes one pending task and returns the result summary to
// record on it. The summary always names the terminal state; err is non-nil
// for terminal failures.
func (s *Service) ProcessTask(ctx context.Context, pending task.PendingTask) (string, error) {
	switch pending.TaskType {
	case task.TypeTopicCreate:
		req, err := DecodeTopicCreateRequest(pending.Request)
		if err != nil {
			return fmt.Sprintf("%s: %v", StateRejected, err), err
		}
		receipt, err := s.CreateTopic(ctx, req.TopicRowID, req.OperatorRowID)
		if err != nil {
			return s.failureSummary(err), err
		}
		summary := string(StateAccepted)
		if receipt.TopicID != nil {
			summary = fmt.Sprintf("%s topic=%s", StateAccepted, receipt.TopicID)
		}
		return summary, nil

	case task.TypeTopicMessage:
		req, err := DecodeTopicMessageRequest(pending.Request)
		if err != nil {
			return fmt.Sprintf("%s: %v", StateRejected, err), err
		}
		_, err = s.SubmitTopicMessage(ctx, req.TopicRowID, req.OperatorRowID, req.Message)
		if err != nil {
			return s.failureSummary(err), err
		}
		return string(StateAccepted), nil

	default:
		err := fmt.Errorf("gateway: unsupported task type %s", pending.TaskType)
		return fmt.Sprintf("%s: %v", StateRejected, err), err
	}
}

func (s *Service) failureSummary(err error) string {
	if code, ok := ledger.IsRejection(err); ok {
		return fmt.Sprintf("%s code=%s", StateRejected, code)
	}
	if ledger.IsTransport(err) {
		return fmt.Sprintf("%s: %v", StateTransportFailed, err)
	}
	return fmt.Sprintf("%s: %v", StateRejected, err)
}
