// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Decode limits. Transcript records carry client-supplied frames, so a
// corrupt or hostile file must not be able to demand unbounded nesting
// or allocation from a reader.
const (
	MaxNestedLevels   = 64
	MaxContainerItems = 1 << 16
)

var modes = sync.OnceValues(func() (cbor.EncMode, cbor.DecMode) {
	encoder, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decoder, err := cbor.DecOptions{
		// Frames decode as map[string]any so they can be re-encoded
		// as JSON without conversion.
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels:  MaxNestedLevels,
		MaxArrayElements: MaxContainerItems,
		MaxMapPairs:      MaxContainerItems,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	return encoder, decoder
})

// Encoder is a CBOR stream encoder.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// NewEncoder returns a deterministic CBOR stream encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	encoder, _ := modes()
	return encoder.NewEncoder(w)
}

// NewDecoder returns a bounded CBOR stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	_, decoder := modes()
	return decoder.NewDecoder(r)
}
