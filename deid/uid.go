package deid

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// UIDGenerator mints DICOM UIDs under an organization root. The suffix is
// the decimal form of a random UUID, so UIDs are unique across concurrent
// jobs without coordination. Results stay within the 64 character limit for
// roots up to 24 characters.
type UIDGenerator struct {
	orgRoot string
}

func NewUIDGenerator(orgRoot string) *UIDGenerator {
	return &UIDGenerator{orgRoot: strings.TrimSuffix(orgRoot, ".")}
}

func (g *UIDGenerator) Generate() string {
	u := uuid.New()
	n := new(big.Int).SetBytes(u[:])
	return g.orgRoot + "." + n.String()
}
