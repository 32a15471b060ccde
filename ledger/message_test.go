package ledger

import (
	"bytes"
	"testing"
)

func sampleTxBody() *TransactionBody {
	return &TransactionBody{
		TransactionID: "3f2c9a4e-0000-4000-8000-000000000001",
		Payer:         EntityID{Num: 1001},
		Fee:           500,
		CreateTopic: &ConsensusCreateTopic{
			AutoRenewAccount: EntityID{Num: 1001},
			AutoRenewPeriod:  7776000,
		},
	}
}

func TestCanonicalIsStable(t *testing.T) {
	body := sampleTxBody()
	first, err := body.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	second, err := body.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("canonical encoding differs between calls")
	}
}

func TestCanonicalFeeChangesDigest(t *testing.T) {
	body := sampleTxBody()
	before, err := body.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	body.Fee = body.Fee + 1
	after, err := body.Digest()
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(before, after) {
		t.Fatal("fee change must alter the digest")
	}
}

func TestCanonicalRequiresExactlyOneOperation(t *testing.T) {
	body := sampleTxBody()
	body.SubmitMessage = &ConsensusSubmitMessage{Topic: EntityID{Num: 7}, Message: []byte("x")}
	if _, err := body.Canonical(); err == nil {
		t.Fatal("two operations must be rejected")
	}
	body.CreateTopic = nil
	body.SubmitMessage = nil
	if _, err := body.Canonical(); err == nil {
		t.Fatal("zero operations must be rejected")
	}
}

func TestQueryCanonicalValidatesResponseType(t *testing.T) {
	q := &QueryBody{
		Payer:        EntityID{Num: 1001},
		GetTopicInfo: &ConsensusGetTopicInfo{Topic: EntityID{Num: 2002}},
	}
	if _, err := q.Canonical(); err == nil {
		t.Fatal("missing response type must be rejected")
	}
	q.ResponseType = CostAnswer
	if _, err := q.Canonical(); err != nil {
		t.Fatalf("canonical: %v", err)
	}
}

func TestParseEntityID(t *testing.T) {
	id, err := ParseEntityID("0.0.98")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.String() != "0.0.98" {
		t.Fatalf("round trip = %q", id.String())
	}
	for _, bad := range []string{"", "1.2", "a.b.c", "1.2.3.4"} {
		if _, err := ParseEntityID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
