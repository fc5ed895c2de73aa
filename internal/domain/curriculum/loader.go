package curriculum

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type catalogFile struct {
	Weeks []Entry `koanf:"weeks"`
}

// LoadFile reads a YAML catalog of the form
//
//	weeks:
//	  - week: 1
//	    title: ...
//	    deliverable: week-01/profile.md
//
// An empty path returns the built-in catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load curriculum %s: %w", path, err)
	}
	var cf catalogFile
	if err := k.UnmarshalWithConf("", &cf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode curriculum %s: %w", path, err)
	}
	return NewCatalog(cf.Weeks)
}
