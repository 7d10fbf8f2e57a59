// Package idgen produces externally visible identifiers for ledger rows and wallets.
package idgen

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Transaction id prefixes, one per ledger row kind.
const (
	PrefixTransfer = "TXN"
	PrefixDeposit  = "DEP"
	PrefixAddFunds = "ADD"
	PrefixAdmin    = "ADM"
)

// Snowflake is a 64-bit time ordered id generator.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

// NewSnowflake returns a generator for the given worker id (0-1023).
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("worker id must be between 0 and %d", maxWorkerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Generate returns the next id. Safe for concurrent use.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}
	s.timestamp = now

	return ((now - epoch) << timestampShift) | (s.workerID << workerIDShift) | s.sequence
}

// TransactionID formats a prefixed id: PREFIX followed by the full snowflake in decimal.
func (s *Snowflake) TransactionID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, s.Generate())
}

// WalletID returns an opaque wallet identifier.
func WalletID() string {
	return "W" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:15])
}
