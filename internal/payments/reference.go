package payments

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const referencePrefix = "RELUX"

const referenceSuffixAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewOrderReference builds the human-readable reference stamped on the
// transaction and mirrored into gateway metadata. Uniqueness is enforced by
// the database; the suffix only disambiguates same-millisecond purchases.
func NewOrderReference(now time.Time) string {
	var suffix strings.Builder
	for i := 0; i < 6; i++ {
		suffix.WriteByte(referenceSuffixAlphabet[rand.Intn(len(referenceSuffixAlphabet))])
	}
	return fmt.Sprintf("%s-%d-%s", referencePrefix, now.UnixMilli(), suffix.String())
}
