package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// storageUnlimited is how Unlimited is persisted in integer columns.
const storageUnlimited int64 = -1

// Quota is an AI-call allowance: either Limited(n) or Unlimited.
// The zero value is Limited(0).
type Quota struct {
	n         int64
	unlimited bool
}

// Limited returns a bounded quota. Negative values clamp to zero.
func Limited(n int64) Quota {
	if n < 0 {
		n = 0
	}
	return Quota{n: n}
}

// Unlimited returns the unbounded quota.
func Unlimited() Quota { return Quota{unlimited: true} }

// IsUnlimited reports whether q has no bound.
func (q Quota) IsUnlimited() bool { return q.unlimited }

// Limit returns the bound and true, or 0 and false for Unlimited.
func (q Quota) Limit() (int64, bool) {
	if q.unlimited {
		return 0, false
	}
	return q.n, true
}

// Add returns q+d. Unlimited absorbs any addition and sums saturate.
func (q Quota) Add(d Quota) Quota {
	if q.unlimited || d.unlimited {
		return Unlimited()
	}
	if q.n > math.MaxInt64-d.n {
		return Limited(math.MaxInt64)
	}
	return Limited(q.n + d.n)
}

// Remaining returns what is left after used calls.
func (q Quota) Remaining(used int64) Quota {
	if q.unlimited {
		return q
	}
	return Limited(q.n - used)
}

// Allows reports whether one more call fits after used calls.
func (q Quota) Allows(used int64) bool {
	return q.unlimited || used < q.n
}

func (q Quota) String() string {
	if q.unlimited {
		return "unlimited"
	}
	return strconv.FormatInt(q.n, 10)
}

// QuotaFromStorage decodes the integer column form, where -1 means unlimited.
func QuotaFromStorage(v int64) Quota {
	if v == storageUnlimited {
		return Unlimited()
	}
	return Limited(v)
}

// StorageValue encodes q for an integer column.
func (q Quota) StorageValue() int64 {
	if q.unlimited {
		return storageUnlimited
	}
	return q.n
}

// MarshalJSON writes a number, or the string "unlimited".
func (q Quota) MarshalJSON() ([]byte, error) {
	if q.unlimited {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.FormatInt(q.n, 10)), nil
}

// UnmarshalJSON accepts a non-negative number or "unlimited".
func (q *Quota) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte(`"unlimited"`)) {
		*q = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("billing: invalid quota %s: %w", b, err)
	}
	if n < 0 {
		return fmt.Errorf("billing: invalid quota %d", n)
	}
	*q = Limited(n)
	return nil
}
