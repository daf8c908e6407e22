package unit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
)

// Kind names the unit held by a Measure. It doubles as the JSON key.
type Kind string

const (
	KindLiters  Kind = "liters"
	KindGallons Kind = "gallons"
	KindLitres  Kind = "litres"
	KindPints   Kind = "pints"
)

var kinds = []Kind{KindLiters, KindGallons, KindLitres, KindPints}

// Measure is a quantity tagged with its unit. Its JSON form is an object with
// exactly one key, for example {"liters": 5}.
type Measure struct {
	Kind  Kind
	Value float64
}

func FromLiters(l Liters) Measure   { return Measure{Kind: KindLiters, Value: float64(l)} }
func FromGallons(g Gallons) Measure { return Measure{Kind: KindGallons, Value: float64(g)} }
func FromLitres(l Litres) Measure   { return Measure{Kind: KindLitres, Value: float64(l)} }
func FromPints(p Pints) Measure     { return Measure{Kind: KindPints, Value: float64(p)} }

// Convert maps liters to gallons, gallons to liters, litres to pints and
// pints to litres. A Measure with an unknown kind is returned unchanged.
func (m Measure) Convert() Measure {
	switch m.Kind {
	case KindLiters:
		return FromGallons(Liters(m.Value).Gallons())
	case KindGallons:
		return FromLiters(Gallons(m.Value).Liters())
	case KindLitres:
		return FromPints(Litres(m.Value).Pints())
	case KindPints:
		return FromLitres(Pints(m.Value).Litres())
	default:
		return m
	}
}

func (m Measure) String() string {
	return fmt.Sprintf("%g %s", m.Value, m.Kind)
}

// MarshalJSON encodes m as a single-key object.
func (m Measure) MarshalJSON() ([]byte, error) {
	if !lo.Contains(kinds, m.Kind) {
		return nil, mferrors.NewValidationError("unit", "kind", m.Kind, "unknown unit")
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return nil, mferrors.NewValidationError("unit", string(m.Kind), m.Value, "must be a finite number")
	}
	return json.Marshal(map[Kind]float64{m.Kind: m.Value})
}

// UnmarshalJSON accepts an object with exactly one known unit key and a
// numeric value. A repeated key counts as a second unit.
func (m *Measure) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return mferrors.NewValidationError("unit", "measure", string(data), "not a JSON object")
	}
	if fields == nil {
		return mferrors.NewValidationError("unit", "measure", "null", "not a JSON object")
	}

	keys := lo.Keys(fields)
	slices.Sort(keys)

	if len(keys) == 1 {
		if n, err := countMembers(data); err != nil || n != 1 {
			return mferrors.NewValidationError("unit", "measure", keys[0], "expected exactly one unit").
				WithHint("a unit key may appear only once")
		}
	}
	if len(keys) != 1 {
		return mferrors.NewValidationError("unit", "measure", strings.Join(keys, ","), "expected exactly one unit").
			WithHint("use one of liters, gallons, litres, pints")
	}

	kind := Kind(keys[0])
	if !lo.Contains(kinds, kind) {
		return mferrors.NewValidationError("unit", "measure", kind, "unknown unit").
			WithHint("use one of liters, gallons, litres, pints")
	}

	raw := bytes.TrimSpace(fields[keys[0]])
	if bytes.Equal(raw, []byte("null")) {
		return mferrors.NewValidationError("unit", string(kind), "null", "must be a number")
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return mferrors.NewValidationError("unit", string(kind), string(raw), "must be a number")
	}

	m.Kind = kind
	m.Value = value
	return nil
}

// countMembers returns the number of members of the top-level object in
// data, repeated keys included.
func countMembers(data []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth, members := 0, 0
	wantKey := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return 0, err
		}

		if depth == 1 && wantKey {
			if _, ok := tok.(string); ok {
				members++
				wantKey = false
				continue
			}
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth == 1 {
				wantKey = true
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
			if depth == 1 {
				wantKey = true
			}
		default:
			if depth == 1 {
				wantKey = true
			}
		}
	}
}
