package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"riskgate/internal/domain"
)

// ChainSeed is the previous_hash of record 0. A fixed constant rather than an
// empty string so a truncated log cannot masquerade as a fresh one.
const ChainSeed = "riskgate-audit-chain-seed-v1"

// HashAlgorithm identifies the digest used for the chain. Stored per record so
// the log is self-describing and verifiable without out-of-band knowledge.
const HashAlgorithm = "sha256"

// Record is one link in the hash chain. Sequence numbers are assigned only by
// the background writer, strictly increasing and gapless per store instance.
// Once persisted a record is never mutated.
type Record struct {
	SequenceNo   uint64          `json:"sequence_no"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      domain.Decision `json:"payload"`
	PreviousHash string          `json:"previous_hash"`
	RecordHash   string          `json:"record_hash"`
	Algorithm    string          `json:"algorithm"`
}

// canonicalPayload serializes the decision payload deterministically.
// encoding/json emits struct fields in declaration order with fixed escaping,
// so the same Decision always yields the same bytes. Timestamps are RFC 3339
// with nanoseconds via time.Time's marshaller.
func canonicalPayload(d domain.Decision) ([]byte, error) {
	return json.Marshal(d)
}

// computeHash implements record_hash = H(previous_hash || canonical(payload) || sequence_no).
func computeHash(previousHash string, payload []byte, sequenceNo uint64) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(payload)
	fmt.Fprintf(h, "%d", sequenceNo)
	return hex.EncodeToString(h.Sum(nil))
}

// NewRecord links a decision into the chain after previousHash at sequenceNo.
func NewRecord(sequenceNo uint64, previousHash string, d domain.Decision, at time.Time) (Record, error) {
	payload, err := canonicalPayload(d)
	if err != nil {
		return Record{}, fmt.Errorf("canonicalize payload: %w", err)
	}
	return Record{
		SequenceNo:   sequenceNo,
		Timestamp:    at.UTC(),
		Payload:      d,
		PreviousHash: previousHash,
		RecordHash:   computeHash(previousHash, payload, sequenceNo),
		Algorithm:    HashAlgorithm,
	}, nil
}

// Recompute returns the hash this record should carry given its own contents.
func (r Record) Recompute() (string, error) {
	if r.Algorithm != HashAlgorithm {
		return "", fmt.Errorf("unsupported hash algorithm %q", r.Algorithm)
	}
	payload, err := canonicalPayload(r.Payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}
	return computeHash(r.PreviousHash, payload, r.SequenceNo), nil
}
