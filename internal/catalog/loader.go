package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/notiledger/internal/model"
)

// Overrides are the custom entries read from the catalog overrides file.
type Overrides struct {
	Banks     []model.CustomBankPattern
	Merchants []model.Merchant
}

type overridesFile struct {
	Banks     []bankEntry      `yaml:"banks"`
	Merchants []model.Merchant `yaml:"merchants"`
}

// bankEntry enables a custom pattern unless the file says otherwise.
type bankEntry struct {
	model.CustomBankPattern `yaml:",inline"`
}

func (e *bankEntry) UnmarshalYAML(node *yaml.Node) error {
	type plain bankEntry
	p := plain{CustomBankPattern: model.CustomBankPattern{IsEnabled: true}}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = bankEntry(p)
	return nil
}

// DecodeOverrides reads overrides YAML. Every bank entry is marked custom and
// is enabled unless is_enabled is false.
func DecodeOverrides(r io.Reader) (*Overrides, error) {
	var f overridesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &Overrides{}, nil
		}
		return nil, fmt.Errorf("failed to decode catalog overrides: %w", err)
	}

	o := &Overrides{Merchants: f.Merchants}
	for _, entry := range f.Banks {
		p := entry.CustomBankPattern
		p.IsCustom = true
		o.Banks = append(o.Banks, p)
	}
	for i := range o.Merchants {
		o.Merchants[i].DefaultCategory = model.ParseCategory(string(o.Merchants[i].DefaultCategory))
	}
	return o, nil
}

// LoadOverrides reads the overrides file at path. A missing file yields empty overrides.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Overrides{}, nil
		}
		return nil, fmt.Errorf("failed to read catalog overrides %s: %w", path, err)
	}
	return DecodeOverrides(bytes.NewReader(data))
}

// Source combines the overrides with the built-in tables.
func (o *Overrides) Source() Source {
	src := DefaultSource()
	src.CustomBanks = o.Banks
	src.CustomMerchants = o.Merchants
	return src
}

// BuildFromFile loads the overrides file and builds a Snapshot from it.
func BuildFromFile(path string) (*Snapshot, error) {
	o, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return Build(o.Source())
}
