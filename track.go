package kappale

type (
	// Track places patterns on the song timeline. Placements never overlap
	// and are kept sorted by Start. Offset shifts every placement of the
	// track; a muted track is kept in the song but plays nothing.
	Track struct {
		ID         string      `yaml:"id" json:"id"`
		Name       string      `yaml:"name,omitempty" json:"name,omitempty"`
		Offset     int         `yaml:"offset,omitempty" json:"offset,omitempty"`
		Muted      bool        `yaml:"muted,omitempty" json:"muted,omitempty"`
		Placements []Placement `yaml:"placements,omitempty" json:"placements,omitempty"`
	}

	// Placement plays Pattern during the ticks [Start, End) of its track. The
	// range may be shorter than the pattern, which cuts the pattern short. An
	// End of zero means the full length of the pattern.
	Placement struct {
		Start   int    `yaml:"start" json:"start"`
		End     int    `yaml:"end" json:"end"`
		Pattern string `yaml:"pattern" json:"pattern"`
	}
)

// Copy makes a deep copy of the track.
func (t *Track) Copy() Track {
	return Track{ID: t.ID, Name: t.Name, Offset: t.Offset, Muted: t.Muted, Placements: clone(t.Placements)}
}

// Len returns the number of ticks the placement covers.
func (p Placement) Len() int { return p.End - p.Start }

// overlaps reports whether the placement shares any tick with q.
func (p Placement) overlaps(q Placement) bool {
	return p.Start < q.End && q.Start < p.End
}

// absEnd returns the last absolute tick (exclusive) the track reaches, or 0
// for a track without placements.
func (t *Track) absEnd() int {
	if len(t.Placements) == 0 {
		return 0
	}
	return t.Offset + t.Placements[len(t.Placements)-1].End
}
