package entity

const DefaultLength = 10

// Filters narrows the proxy list requested from the inventory service.
// A non-zero Profile takes precedence over Locations and Types.
type Filters struct {
	Length    int
	Profile   *int
	Locations string
	Types     string
	Providers string
	IgnoreIPs string
}

// EffectiveLength returns Length, or DefaultLength when Length is not positive.
func (f Filters) EffectiveLength() int {
	if f.Length <= 0 {
		return DefaultLength
	}
	return f.Length
}
