// Package unit defines the volume types carried by the milk bucket.
//
// US and UK measures are distinct named types so that a quantity in one unit
// cannot be passed where another is expected without an explicit conversion.
// All types marshal to JSON as bare numbers.
package unit

// LitersPerGallon is the number of liters in one US liquid gallon.
const LitersPerGallon = 3.785411784

// LitresPerPint is the number of litres in one imperial (UK) pint.
const LitresPerPint = 0.56826125

// Liters is a volume in liters, the bucket's native unit.
type Liters float64

// Gallons is a volume in US liquid gallons.
type Gallons float64

// Litres is a volume in litres, paired with UK pints.
type Litres float64

// Pints is a volume in imperial (UK) pints.
type Pints float64

// Gallons converts l to US gallons.
func (l Liters) Gallons() Gallons {
	return Gallons(float64(l) / LitersPerGallon)
}

// Liters converts g to liters.
func (g Gallons) Liters() Liters {
	return Liters(float64(g) * LitersPerGallon)
}

// Pints converts l to UK pints.
func (l Litres) Pints() Pints {
	return Pints(float64(l) / LitresPerPint)
}

// Litres converts p to litres.
func (p Pints) Litres() Litres {
	return Litres(float64(p) * LitresPerPint)
}
