package badge

// Option applies a configuration option to the Issuer.
type Option func(*Issuer)

// WithBrand sets the programme name and tagline printed under the divider.
func WithBrand(name, tagline string) Option {
	return func(i *Issuer) {
		if name != "" {
			i.brand = name
		}
		i.tagline = tagline
	}
}
