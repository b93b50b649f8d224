package matching

import (
	"math"

	"housing-allocation-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Weights are the relative importance of each sub-score. They sum to 1.
type Weights struct {
	Socioeconomic float64
	Income        float64
	Space         float64
	Locality      float64
}

// IncomeBand is an inclusive household income range. An invalid Max means unbounded.
type IncomeBand struct {
	Min decimal.Decimal
	Max decimal.NullDecimal
}

func (b IncomeBand) below(income decimal.Decimal) bool {
	return income.LessThan(b.Min)
}

func (b IncomeBand) above(income decimal.Decimal) bool {
	return b.Max.Valid && income.GreaterThan(b.Max.Decimal)
}

// ScorerConfig holds the scoring table. Credits are percentages of a factor's weight.
type ScorerConfig struct {
	Weights     Weights
	IncomeBands map[string]IncomeBand
	DefaultBand IncomeBand

	InBandCredit    float64
	BelowBandCredit float64
	AboveBandCredit float64

	AreaPerMember float64
	MaxAreaRatio  float64

	SameMunicipalityCredit float64
	SameRegionCredit       float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights: Weights{
			Socioeconomic: 0.4,
			Income:        0.3,
			Space:         0.2,
			Locality:      0.1,
		},
		IncomeBands: map[string]IncomeBand{
			models.HousingSocial: {Min: decimal.Zero, Max: decimal.NewNullDecimal(decimal.NewFromInt(800000))},
			models.HousingMedia:  {Min: decimal.NewFromInt(800001), Max: decimal.NewNullDecimal(decimal.NewFromInt(2000000))},
			models.HousingAlta:   {Min: decimal.NewFromInt(2000001)},
		},
		DefaultBand: IncomeBand{Min: decimal.Zero},

		InBandCredit:    100,
		BelowBandCredit: 50,
		AboveBandCredit: 30,

		AreaPerMember: 40,
		MaxAreaRatio:  2.0,

		SameMunicipalityCredit: 100,
		SameRegionCredit:       70,
	}
}

// Breakdown is the contribution of every factor to a compatibility score.
type Breakdown struct {
	Socioeconomic float64 `json:"socioeconomic"`
	Income        float64 `json:"income"`
	Space         float64 `json:"space"`
	Locality      float64 `json:"locality"`
}

// Total is the clamped sum of the contributions.
func (b Breakdown) Total() float64 {
	total := b.Socioeconomic + b.Income + b.Space + b.Locality
	return math.Max(0, math.Min(total, 100))
}

// Scorer computes beneficiary/project compatibility. It never mutates its inputs.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) *Scorer {
	bands := make(map[string]IncomeBand, len(cfg.IncomeBands))
	for k, v := range cfg.IncomeBands {
		bands[k] = v
	}
	cfg.IncomeBands = bands
	return &Scorer{cfg: cfg}
}

// Score returns the compatibility of b and p in [0, 100]. Missing inputs
// contribute nothing to their factor; the remaining weights are not rescaled.
func (s *Scorer) Score(b *models.Beneficiary, p *models.Project) float64 {
	return s.Breakdown(b, p).Total()
}

func (s *Scorer) Breakdown(b *models.Beneficiary, p *models.Project) Breakdown {
	return Breakdown{
		Socioeconomic: s.socioeconomic(b, p),
		Income:        s.income(b, p),
		Space:         s.space(b, p),
		Locality:      s.locality(b, p),
	}
}

func present(d decimal.NullDecimal) bool {
	return d.Valid && !d.Decimal.IsZero()
}

func (s *Scorer) socioeconomic(b *models.Beneficiary, p *models.Project) float64 {
	if b.SocioeconomicScore == nil || *b.SocioeconomicScore == 0 || !present(p.UnitPrice) {
		return 0
	}
	ratio := math.Min(float64(*b.SocioeconomicScore)/100, 1.0)
	return s.cfg.Weights.Socioeconomic * ratio * 100
}

func (s *Scorer) income(b *models.Beneficiary, p *models.Project) float64 {
	if !present(b.HouseholdIncome) {
		return 0
	}
	band, ok := s.cfg.IncomeBands[p.HousingType]
	if !ok {
		band = s.cfg.DefaultBand
	}

	income := b.HouseholdIncome.Decimal
	switch {
	case band.below(income):
		return s.cfg.Weights.Income * s.cfg.BelowBandCredit
	case band.above(income):
		return s.cfg.Weights.Income * s.cfg.AboveBandCredit
	default:
		return s.cfg.Weights.Income * s.cfg.InBandCredit
	}
}

func (s *Scorer) space(b *models.Beneficiary, p *models.Project) float64 {
	if b.HouseholdSize == nil || *b.HouseholdSize <= 0 || !present(p.UnitArea) {
		return 0
	}
	ideal := float64(*b.HouseholdSize) * s.cfg.AreaPerMember
	ratio := math.Min(p.UnitArea.Decimal.InexactFloat64()/ideal, s.cfg.MaxAreaRatio)
	return s.cfg.Weights.Space * (ratio / s.cfg.MaxAreaRatio) * 100
}

func (s *Scorer) locality(b *models.Beneficiary, p *models.Project) float64 {
	if b.MunicipalityID == nil || p.MunicipalityID == nil {
		return 0
	}
	if *b.MunicipalityID == *p.MunicipalityID {
		return s.cfg.Weights.Locality * s.cfg.SameMunicipalityCredit
	}
	if b.Municipality.SameRegion(p.Municipality) {
		return s.cfg.Weights.Locality * s.cfg.SameRegionCredit
	}
	return 0
}
