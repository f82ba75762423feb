package okx

import (
	_ "embed"

	"turnstile/pkg/catalog"
	"turnstile/pkg/signing"
	"turnstile/pkg/venue"
)

// Name is the registered venue name.
const Name = "okx"

//go:embed catalog.yaml
var catalogYAML []byte

var cat = catalog.MustParse(catalogYAML)

func init() {
	venue.Register(Name, New)
}

// New builds the OKX profile.
func New(opts ...venue.Option) *venue.Profile {
	o := venue.Apply(opts...)
	c := o.CatalogOr(cat)
	return &venue.Profile{
		Name:        Name,
		Catalog:     c,
		Signer:      signing.NewPassphraseHMAC(o.SigningOptions()...),
		Interpreter: Interpreter{},
	}
}
