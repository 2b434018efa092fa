package inmemory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/bank-reconciliation/internal/domain"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Transactions []domain.BankTransaction `json:"transactions"`
	Entries      []domain.FinancialEntry  `json:"entries"`
	Rules        []domain.MatchingRule    `json:"rules"`
}

// LoadSeed decodes a Seed from r and puts every row into the store.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("LoadSeed: decoding: %w", err)
	}

	for _, tx := range seed.Transactions {
		if err := s.PutTransaction(tx); err != nil {
			return fmt.Errorf("LoadSeed: transaction %q: %w", tx.ID, err)
		}
	}
	for _, e := range seed.Entries {
		if err := s.PutEntry(e); err != nil {
			return fmt.Errorf("LoadSeed: entry %q: %w", e.ID, err)
		}
	}
	for _, rule := range seed.Rules {
		if err := s.PutRule(rule); err != nil {
			return fmt.Errorf("LoadSeed: rule %q: %w", rule.ID, err)
		}
	}
	return nil
}

// LoadSeedFile loads a seed document from path.
func (s *Store) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("LoadSeedFile: %w", err)
	}
	defer f.Close()
	return s.LoadSeed(f)
}
