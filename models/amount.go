// models/amount.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
)

// TokenDecimals matches the stable asset (18 decimal places).
const TokenDecimals = 18

// oneToken = 10^18, the smallest-unit value of one whole stable token.
var oneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// Amount is an integer fixed-point stable-asset quantity in smallest units.
// Stored in the DB as a decimal string so values above int64 range survive
// round-trips exactly.
type Amount struct {
	n big.Int
}

func NewAmount(raw *big.Int) Amount {
	var a Amount
	if raw != nil {
		a.n.Set(raw)
	}
	return a
}

// Tokens returns n whole tokens as an Amount (n * 10^18).
func Tokens(n int64) Amount {
	var a Amount
	a.n.Mul(big.NewInt(n), oneToken)
	return a
}

func AmountFromString(s string) (Amount, error) {
	var a Amount
	if s == "" {
		return a, nil
	}
	if _, ok := a.n.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return a, nil
}

// Raw returns a copy of the underlying integer.
func (a Amount) Raw() *big.Int {
	return new(big.Int).Set(&a.n)
}

func (a Amount) String() string { return a.n.String() }

func (a Amount) Sign() int { return a.n.Sign() }

func (a Amount) IsZero() bool { return a.n.Sign() == 0 }

func (a Amount) Cmp(b Amount) int { return a.n.Cmp(&b.n) }

func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.n.Add(&a.n, &b.n)
	return out
}

func (a Amount) Sub(b Amount) Amount {
	var out Amount
	out.n.Sub(&a.n, &b.n)
	return out
}

// WholeTokens returns floor(a / 10^18). Used for reputation points, which
// accrue one point per whole token of payout.
func (a Amount) WholeTokens() int64 {
	q := new(big.Int).Quo(&a.n, oneToken)
	return q.Int64()
}

// SplitFee divides a into (fee, payout) where fee = a * bps / 10000 floored.
// fee + payout == a holds exactly for every bps in [0, 10000].
func (a Amount) SplitFee(bps int64) (fee, payout Amount) {
	fee.n.Mul(&a.n, big.NewInt(bps))
	fee.n.Quo(&fee.n, big.NewInt(10000))
	payout.n.Sub(&a.n, &fee.n)
	return fee, payout
}

func (a Amount) Value() (driver.Value, error) {
	return a.n.String(), nil
}

func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.n.SetInt64(0)
		return nil
	case int64:
		a.n.SetInt64(v)
		return nil
	case string:
		if _, ok := a.n.SetString(v, 10); !ok {
			return fmt.Errorf("cannot scan %q into Amount", v)
		}
		return nil
	case []byte:
		if _, ok := a.n.SetString(string(v), 10); !ok {
			return fmt.Errorf("cannot scan %q into Amount", v)
		}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

// GormDataType keeps amounts in a text column; numeric affinity would round
// 18-decimal values on some backends.
func (Amount) GormDataType() string { return "varchar(80)" }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.n.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AmountFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
