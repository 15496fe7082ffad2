package scoring

// CategorySchema describes one category for clients rendering results
type CategorySchema struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Max         int    `json:"max"`
}

// PenaltySchema describes one severe penalty type
type PenaltySchema struct {
	Type        PenaltyType `json:"type"`
	Description string      `json:"description"`
	Penalty     int         `json:"penalty"`
}

// ScoringSchema is the self-description served alongside scores
type ScoringSchema struct {
	Version    string             `json:"version"`
	Categories []CategorySchema   `json:"categories"`
	Penalties  []PenaltySchema    `json:"penalties"`
	MaxTotal   int                `json:"maxTotal"`
	Grades     map[string]float64 `json:"grades"`
}

// Schema describes the categories and penalties under cfg
func Schema(cfg Config) ScoringSchema {
	s := ScoringSchema{
		Version: Version,
		Grades: map[string]float64{
			"A": cfg.GradeA,
			"B": cfg.GradeB,
			"C": cfg.GradeC,
			"D": cfg.GradeD,
		},
	}
	for _, c := range Categories {
		s.Categories = append(s.Categories, CategorySchema{
			Name:        c.String(),
			Description: c.Description(),
			Max:         c.Max(cfg),
		})
		s.MaxTotal += c.Max(cfg)
	}
	for _, t := range PenaltyTypes {
		s.Penalties = append(s.Penalties, PenaltySchema{
			Type:        t,
			Description: t.Description(),
			Penalty:     t.Amount(cfg),
		})
	}
	return s
}
