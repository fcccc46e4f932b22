// Package fraud screens single payment transactions with simple rules and a
// per-counterparty z-score.
package fraud

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransaction is returned for input that is not a transaction object.
var ErrInvalidTransaction = errors.New("Invalid JSON transaction. Expect keys: amount, counterparty, hour.")

// UnknownHour marks a transaction whose hour could not be determined.
const UnknownHour = -1

// Transaction is one payment to screen.
type Transaction struct {
	Type         string  `json:"type,omitempty" validate:"omitempty,oneof=cash card ach wire"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Counterparty string  `json:"counterparty"`
	Hour         int     `json:"hour" validate:"gte=-1,lte=23"`
}

var validate = validator.New()

// Validate checks field ranges.
func (t Transaction) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w (%s failed %s)", ErrInvalidTransaction, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return nil
}

// ParseTransaction decodes a JSON transaction. Amounts and hours may be given
// as numbers or numeric strings; when "hour" is absent the hour is taken from
// the HH prefix of "time" or "timestamp".
func ParseTransaction(raw string) (Transaction, error) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &m); err != nil {
		return Transaction{}, ErrInvalidTransaction
	}
	return FromMap(m)
}

// FromMap builds a transaction from decoded JSON fields.
func FromMap(m map[string]interface{}) (Transaction, error) {
	amount, ok := number(m["amount"])
	if !ok {
		return Transaction{}, fmt.Errorf("%w (amount is not a number)", ErrInvalidTransaction)
	}

	tx := Transaction{
		Amount:       amount,
		Counterparty: strings.TrimSpace(stringField(m["counterparty"])),
		Hour:         parseHour(m),
	}
	if t := strings.ToLower(strings.TrimSpace(stringField(m["type"]))); t != "" {
		tx.Type = t
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		return n, true
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, true
		}
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func stringField(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func parseHour(m map[string]interface{}) int {
	if h, present := m["hour"]; present && h != nil {
		switch v := h.(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}

	t := stringField(m["time"])
	if t == "" {
		t = stringField(m["timestamp"])
	}
	if i := strings.Index(t, ":"); i > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(t[:i])); err == nil {
			return n
		}
	}
	return UnknownHour
}
