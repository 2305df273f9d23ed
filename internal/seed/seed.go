// Package seed holds the static data tables the loader migrates. The
// production tables ship embedded in the binary; a TOML file with the same
// layout can replace them.
package seed

import (
	"bytes"
	_ "embed"
	"os"

	"blog_migrate/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const Version = 1

//go:embed data/blog.toml
var embedded []byte

type Data struct {
	Version      int                     `toml:"version"`
	FallbackSlug string                  `toml:"fallback_slug"`
	Categories   []models.Category       `toml:"category" validate:"dive"`
	Legacy       []models.LegacyCategory `toml:"legacy_category" validate:"dive"`
	Posts        []models.Post           `toml:"post" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded production tables.
func Default() (*Data, error) {
	return Parse(embedded)
}

// Load reads the tables from path, or the embedded ones when path is empty.
func Load(path string) (*Data, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	data, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "seed file %s", path)
	}
	return data, nil
}

func Parse(raw []byte) (*Data, error) {
	data := &Data{}
	md, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown seed keys: %v", undecoded)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Data) Validate() error {
	if d.Version != Version {
		return errors.Errorf("unsupported seed version %d, want %d", d.Version, Version)
	}
	if err := validate.Struct(d); err != nil {
		return errors.Wrap(err, "invalid seed record")
	}

	slugs := make(map[string]bool, len(d.Categories))
	for _, c := range d.Categories {
		if slugs[c.Slug] {
			return errors.Errorf("duplicate category slug %q", c.Slug)
		}
		slugs[c.Slug] = true
	}
	if !slugs[d.FallbackSlug] {
		return errors.Errorf("fallback slug %q is not a seeded category", d.FallbackSlug)
	}

	legacy := make(map[int]bool, len(d.Legacy))
	for _, l := range d.Legacy {
		if legacy[l.ID] {
			return errors.Errorf("legacy category %d mapped twice", l.ID)
		}
		legacy[l.ID] = true
		if !slugs[l.Slug] {
			return errors.Errorf("legacy category %d maps to unknown slug %q", l.ID, l.Slug)
		}
	}

	posts := make(map[string]bool, len(d.Posts))
	for _, p := range d.Posts {
		if posts[p.Slug] {
			return errors.Errorf("duplicate post slug %q", p.Slug)
		}
		posts[p.Slug] = true
	}
	return nil
}

// Mapping returns the legacy id to slug table.
func (d *Data) Mapping() map[int]string {
	res := make(map[int]string, len(d.Legacy))
	for _, l := range d.Legacy {
		res[l.ID] = l.Slug
	}
	return res
}
