package fraud

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
)

// Flag names one rule that fired.
type Flag string

const (
	FlagOddHour             Flag = "odd-hour"
	FlagUnknownCounterparty Flag = "unknown-counterparty"
	FlagLargeAmount         Flag = "large-amount"
	FlagAmountAnomaly       Flag = "amount-anomaly"
)

// MinHistoryPoints is the smallest per-counterparty history the z-score rule uses.
const MinHistoryPoints = 5

// AnomalyZ is the absolute z-score above which an amount is anomalous.
const AnomalyZ = 3.0

// Policy holds the screening thresholds.
type Policy struct {
	OddHours             []int   `mapstructure:"odd_hours" yaml:"odd_hours"`
	LargeAmountThreshold float64 `mapstructure:"large_amount_threshold" yaml:"large_amount_threshold"`
}

// DefaultPolicy flags midnight to 4am and amounts of 5000 or more.
func DefaultPolicy() Policy {
	return Policy{
		OddHours:             []int{0, 1, 2, 3, 4},
		LargeAmountThreshold: 5000,
	}
}

// Verdict is the screening result.
type Verdict struct {
	Suspicious   bool    `json:"-"`
	Flags        []Flag  `json:"flags"`
	Amount       float64 `json:"amount"`
	Hour         int     `json:"hour"`
	Counterparty string  `json:"counterparty"`
}

// Has reports whether f fired.
func (v Verdict) Has(f Flag) bool {
	return slices.Contains(v.Flags, f)
}

// String renders the verdict the way the FraudCheck tool returns it.
func (v Verdict) String() string {
	details, err := json.Marshal(v)
	if err != nil {
		details = []byte("{}")
	}
	return fmt.Sprintf("Suspicious: %t. Details: %s", v.Suspicious, details)
}

// Screen applies the rules to tx. known is the user's set of known
// counterparties; the unknown-counterparty rule only runs when it is non-empty.
// history maps counterparty to past amounts for the z-score rule.
func Screen(tx Transaction, known []string, policy Policy, history map[string][]float64) Verdict {
	v := Verdict{
		Flags:        []Flag{},
		Amount:       tx.Amount,
		Hour:         tx.Hour,
		Counterparty: tx.Counterparty,
	}

	if tx.Hour != UnknownHour && slices.Contains(policy.OddHours, tx.Hour) {
		v.Flags = append(v.Flags, FlagOddHour)
	}

	if len(known) > 0 && tx.Counterparty != "" && !slices.Contains(known, tx.Counterparty) {
		v.Flags = append(v.Flags, FlagUnknownCounterparty)
	}

	if tx.Amount >= policy.LargeAmountThreshold {
		v.Flags = append(v.Flags, FlagLargeAmount)
	}

	if tx.Counterparty != "" && history != nil {
		if z, ok := ZScore(tx.Amount, history[tx.Counterparty]); ok && math.Abs(z) > AnomalyZ {
			v.Flags = append(v.Flags, FlagAmountAnomaly)
		}
	}

	v.Suspicious = len(v.Flags) > 0
	return v
}

// ZScore returns the z-score of amount against past amounts using the
// population standard deviation. A zero deviation is treated as 1. ok is false
// when fewer than MinHistoryPoints amounts are available.
func ZScore(amount float64, past []float64) (float64, bool) {
	if len(past) < MinHistoryPoints {
		return 0, false
	}
	mean, err := stats.Mean(past)
	if err != nil {
		return 0, false
	}
	sd, err := stats.StandardDeviationPopulation(past)
	if err != nil {
		return 0, false
	}
	if sd == 0 {
		sd = 1.0
	}
	return (amount - mean) / sd, true
}

// CheckJSON parses raw and screens it, returning the tool text.
func CheckJSON(raw string, known []string, policy Policy, history map[string][]float64) (Verdict, string) {
	tx, err := ParseTransaction(raw)
	if err != nil {
		return Verdict{}, ErrInvalidTransaction.Error()
	}
	v := Screen(tx, known, policy, history)
	return v, v.String()
}
