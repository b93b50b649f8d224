package models

type Region struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`
	Code string `gorm:"size:10" json:"code,omitempty"`
}

func (Region) TableName() string { return "regions" }

type Municipality struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:100;not null" json:"name"`
	Code     string  `gorm:"size:10" json:"code,omitempty"`
	RegionID *uint   `gorm:"index" json:"region_id,omitempty"`
	Region   *Region `json:"region,omitempty"`
}

func (Municipality) TableName() string { return "municipalities" }

// SameRegion reports whether both municipalities belong to the same, known region.
func (m *Municipality) SameRegion(other *Municipality) bool {
	if m == nil || other == nil || m.RegionID == nil || other.RegionID == nil {
		return false
	}
	return *m.RegionID == *other.RegionID
}
