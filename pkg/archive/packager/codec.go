package packager

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"archival-hq/keeper/pkg/archive"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding sorts map keys, so identical record sets
	// always serialize to identical bytes.
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("packager: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("packager: CBOR decoder initialization failed: " + err.Error())
	}
}

// body is the serialized content of an archive.
type body struct {
	EntityType string            `cbor:"entity_type"`
	Records    []*archive.Record `cbor:"records"`
}

func encodeBody(entityType string, records []*archive.Record) ([]byte, error) {
	normalized := make([]*archive.Record, len(records))
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("%w: record %d is nil", archive.ErrSerialization, i)
		}
		c := *r
		c.CreatedAt = r.CreatedAt.UTC()
		normalized[i] = &c
	}
	data, err := encMode.Marshal(body{EntityType: entityType, Records: normalized})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrSerialization, err)
	}
	return data, nil
}

func decodeBody(data []byte) (*body, error) {
	var b body
	if err := decMode.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: decode records: %v", archive.ErrCorruptPayload, err)
	}
	for _, r := range b.Records {
		if r != nil {
			r.CreatedAt = r.CreatedAt.In(time.UTC)
		}
	}
	return &b, nil
}
