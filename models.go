package main

import (
	"strings"
	"time"
)

// Product is a catalog entry.
type Product struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Notes           string     `json:"notes"`
	Image           string     `json:"image"`
	AudioURL        string     `json:"audioUrl,omitempty"`
	FullDescription string     `json:"fullDescription"`
	TopNotes        string     `json:"topNotes"`
	HeartNotes      string     `json:"heartNotes"`
	BaseNotes       string     `json:"baseNotes"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// ProductPatch carries a partial update. Nil fields keep their current value.
type ProductPatch struct {
	Name            *string
	Description     *string
	Image           *string
	AudioURL        *string
	FullDescription *string
	TopNotes        *string
	HeartNotes      *string
	BaseNotes       *string
}

// MediaAsset is the reference returned by the asset host for an upload.
type MediaAsset struct {
	URL          string `json:"url"`
	PublicID     string `json:"publicId"`
	ResourceType string `json:"resourceType,omitempty"`
}

// joinNotes joins the non-empty note fields with ", ".
func joinNotes(top, heart, base string) string {
	parts := make([]string, 0, 3)
	for _, n := range []string{top, heart, base} {
		if n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, ", ")
}

func (p *Product) deriveNotes() {
	p.Notes = joinNotes(p.TopNotes, p.HeartNotes, p.BaseNotes)
}

// prepareNew validates a product for insertion and stamps server-owned fields.
func prepareNew(p Product, now time.Time) (Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Image = strings.TrimSpace(p.Image)
	switch {
	case p.ID == "":
		return Product{}, errInvalidInput("id is required")
	case p.Name == "":
		return Product{}, errInvalidInput("name is required")
	case p.Image == "":
		return Product{}, errInvalidInput("image is required")
	}
	p.CreatedAt = stamp(now)
	p.UpdatedAt = nil
	p.deriveNotes()
	return p, nil
}

func (pp ProductPatch) validate() error {
	if pp.Name != nil && strings.TrimSpace(*pp.Name) == "" {
		return errInvalidInput("name cannot be empty")
	}
	if pp.Image != nil && strings.TrimSpace(*pp.Image) == "" {
		return errInvalidInput("image cannot be empty")
	}
	return nil
}

// applyTo merges the patch into p, recomputes notes and stamps updatedAt.
func (pp ProductPatch) applyTo(p *Product, now time.Time) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if pp.Name != nil {
		p.Name = strings.TrimSpace(*pp.Name)
	}
	if pp.Image != nil {
		p.Image = strings.TrimSpace(*pp.Image)
	}
	set(&p.Description, pp.Description)
	set(&p.AudioURL, pp.AudioURL)
	set(&p.FullDescription, pp.FullDescription)
	set(&p.TopNotes, pp.TopNotes)
	set(&p.HeartNotes, pp.HeartNotes)
	set(&p.BaseNotes, pp.BaseNotes)
	p.deriveNotes()
	ts := stamp(now)
	p.UpdatedAt = &ts
}

// stamp normalizes a timestamp to UTC at microsecond precision, the
// resolution of the SQL backends' timestamp columns.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
