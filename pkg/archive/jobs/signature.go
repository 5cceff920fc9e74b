package jobs

import (
	"encoding/hex"
	"fmt"

	"archival-hq/keeper/pkg/archive"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

var signatureEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	signatureEncMode, err = opts.EncMode()
	if err != nil {
		panic("jobs: invalid CBOR encoding options: " + err.Error())
	}
}

type signatureInput struct {
	EntityType string          `cbor:"entity_type"`
	Filters    archive.Filters `cbor:"filters"`
}

// Signature identifies the record set a request selects. Two requests with
// the same entity type and equivalent filters have the same signature.
func Signature(entityType string, filters archive.Filters) (string, error) {
	f := filters.Clone()
	if f.From != nil {
		*f.From = f.From.UTC()
	}
	if f.To != nil {
		*f.To = f.To.UTC()
	}
	if len(f.Attributes) == 0 {
		f.Attributes = nil
	}

	data, err := signatureEncMode.Marshal(signatureInput{EntityType: entityType, Filters: f})
	if err != nil {
		return "", fmt.Errorf("encode job signature: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
