package models

// Settings holds the per-user runtime configuration: signal thresholds, the
// volatility and direction tuning knobs, and the previous-day statistics the
// engines need at session open. Stored per user and editable over the admin
// API while the pipeline runs.
type Settings struct {
	Username string `json:"username"`

	DeltaThreshold           float64 `json:"delta_threshold" default:"0.20" validate:"gte=0"`
	VegaThreshold            float64 `json:"vega_threshold" default:"0.10" validate:"gte=0"`
	ThetaThreshold           float64 `json:"theta_threshold" default:"0.02" validate:"gte=0"`
	GammaThreshold           float64 `json:"gamma_threshold" default:"0.01" validate:"gte=0"`
	ConsecutiveConfirmations int     `json:"consecutive_confirmations" default:"2" validate:"gte=1"`

	VolContractionRatio float64 `json:"vol_contraction_ratio" default:"0.8" validate:"gt=0"`
	VolExpansionRatio   float64 `json:"vol_expansion_ratio" default:"1.5" validate:"gt=0"`
	VolAccelThreshold   float64 `json:"vol_accel_threshold" default:"0.05" validate:"gte=0"`

	DirAcceptanceThreshold float64 `json:"dir_acceptance_threshold" default:"0.65" validate:"gte=0,lte=1"`
	DirNeutralAcceptance   float64 `json:"dir_neutral_acceptance" default:"0.5" validate:"gte=0,lte=1"`
	DirREABull             float64 `json:"dir_rea_bull" default:"0.3"`
	DirREABear             float64 `json:"dir_rea_bear" default:"-0.3"`
	DirREANeutralBand      float64 `json:"dir_rea_neutral_band" default:"0.3" validate:"gte=0"`
	DirDEDirectional       float64 `json:"dir_de_directional" default:"0.5" validate:"gte=0,lte=1"`
	DirDENeutral           float64 `json:"dir_de_neutral" default:"0.3" validate:"gte=0,lte=1"`

	PrevDayClose float64 `json:"prev_day_close"`
	PrevDayRange float64 `json:"prev_day_range"`
	PrevDayDate  string  `json:"prev_day_date"`
}

// SettingsPatch is a partial update; nil fields are left untouched.
// Previous-day statistics are pipeline-owned and not patchable.
type SettingsPatch struct {
	DeltaThreshold           *float64 `json:"delta_threshold" validate:"omitempty,gte=0"`
	VegaThreshold            *float64 `json:"vega_threshold" validate:"omitempty,gte=0"`
	ThetaThreshold           *float64 `json:"theta_threshold" validate:"omitempty,gte=0"`
	GammaThreshold           *float64 `json:"gamma_threshold" validate:"omitempty,gte=0"`
	ConsecutiveConfirmations *int     `json:"consecutive_confirmations" validate:"omitempty,gte=1"`

	VolContractionRatio *float64 `json:"vol_contraction_ratio" validate:"omitempty,gt=0"`
	VolExpansionRatio   *float64 `json:"vol_expansion_ratio" validate:"omitempty,gt=0"`
	VolAccelThreshold   *float64 `json:"vol_accel_threshold" validate:"omitempty,gte=0"`

	DirAcceptanceThreshold *float64 `json:"dir_acceptance_threshold" validate:"omitempty,gte=0,lte=1"`
	DirNeutralAcceptance   *float64 `json:"dir_neutral_acceptance" validate:"omitempty,gte=0,lte=1"`
	DirREABull             *float64 `json:"dir_rea_bull"`
	DirREABear             *float64 `json:"dir_rea_bear"`
	DirREANeutralBand      *float64 `json:"dir_rea_neutral_band" validate:"omitempty,gte=0"`
	DirDEDirectional       *float64 `json:"dir_de_directional" validate:"omitempty,gte=0,lte=1"`
	DirDENeutral           *float64 `json:"dir_de_neutral" validate:"omitempty,gte=0,lte=1"`
}

// Apply overlays the patch onto s.
func (p SettingsPatch) Apply(s *Settings) {
	if p.DeltaThreshold != nil {
		s.DeltaThreshold = *p.DeltaThreshold
	}
	if p.VegaThreshold != nil {
		s.VegaThreshold = *p.VegaThreshold
	}
	if p.ThetaThreshold != nil {
		s.ThetaThreshold = *p.ThetaThreshold
	}
	if p.GammaThreshold != nil {
		s.GammaThreshold = *p.GammaThreshold
	}
	if p.ConsecutiveConfirmations != nil {
		s.ConsecutiveConfirmations = *p.ConsecutiveConfirmations
	}
	if p.VolContractionRatio != nil {
		s.VolContractionRatio = *p.VolContractionRatio
	}
	if p.VolExpansionRatio != nil {
		s.VolExpansionRatio = *p.VolExpansionRatio
	}
	if p.VolAccelThreshold != nil {
		s.VolAccelThreshold = *p.VolAccelThreshold
	}
	if p.DirAcceptanceThreshold != nil {
		s.DirAcceptanceThreshold = *p.DirAcceptanceThreshold
	}
	if p.DirNeutralAcceptance != nil {
		s.DirNeutralAcceptance = *p.DirNeutralAcceptance
	}
	if p.DirREABull != nil {
		s.DirREABull = *p.DirREABull
	}
	if p.DirREABear != nil {
		s.DirREABear = *p.DirREABear
	}
	if p.DirREANeutralBand != nil {
		s.DirREANeutralBand = *p.DirREANeutralBand
	}
	if p.DirDEDirectional != nil {
		s.DirDEDirectional = *p.DirDEDirectional
	}
	if p.DirDENeutral != nil {
		s.DirDENeutral = *p.DirDENeutral
	}
}
