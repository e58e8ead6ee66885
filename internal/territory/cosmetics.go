package territory

// Cosmetics is the presentation bundle of a territory: immutable value
// object, replaced wholesale on edit so readers never observe a partial
// update.
type Cosmetics struct {
	Description string
	IconID      int32
	Color       int32 // packed RGB
}

// Taxes holds a territory's tax rates. PropertyRate, RentRate and SaleRate
// are normalized to [0,1]; BaseTax is an absolute per-member amount and may
// be negative (a subsidy).
type Taxes struct {
	BaseTax      float64
	PropertyRate float64
	RentRate     float64
	SaleRate     float64
}

// Normalized returns a copy with the three property rates clamped to [0,1].
// BaseTax is passed through unchanged.
func (t Taxes) Normalized() Taxes {
	t.PropertyRate = clampRate(t.PropertyRate)
	t.RentRate = clampRate(t.RentRate)
	t.SaleRate = clampRate(t.SaleRate)
	return t
}

func clampRate(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
