package models

type (
	Category struct {
		LegacyID    int    `json:"legacyId" toml:"legacy_id" validate:"gt=0"`
		Name        string `json:"name" toml:"name" validate:"required"`
		Slug        string `json:"slug" toml:"slug" validate:"required"`
		Description string `json:"description" toml:"description"`
	}

	Post struct {
		Title            string `json:"title" toml:"title" validate:"required"`
		Slug             string `json:"slug" toml:"slug" validate:"required"`
		Excerpt          string `json:"excerpt" toml:"excerpt"`
		Content          string `json:"content" toml:"content" validate:"required"`
		LegacyCategoryID int    `json:"legacyCategoryId" toml:"legacy_category_id" validate:"gte=0"`
		Published        bool   `json:"published" toml:"published"`
	}

	// LegacyCategory maps a category id of the old blog onto a slug of the new one.
	LegacyCategory struct {
		ID   int    `json:"id" toml:"id" validate:"gte=0"`
		Slug string `json:"slug" toml:"slug" validate:"required"`
	}
)

const (
	EntityCategory = "category"
	EntityPost     = "post"
)

type (
	// Outcome is the result of upserting one record.
	Outcome struct {
		Entity string `json:"entity"`
		Slug   string `json:"slug"`
		Label  string `json:"label"`
		Err    error  `json:"-"`
	}

	Report struct {
		Categories []Outcome `json:"categories"`
		Posts      []Outcome `json:"posts"`

		CategoryCount int64 `json:"categoryCount"`
		PostCount     int64 `json:"postCount"`
	}
)

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) (res []Outcome) {
	for _, o := range outcomes {
		if !o.OK() {
			res = append(res, o)
		}
	}
	return
}
