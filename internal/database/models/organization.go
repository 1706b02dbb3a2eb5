package models

type Organization struct {
	Base
	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"uniqueIndex;not null" json:"slug"`

	// Relationships
	Users     []User                `gorm:"foreignKey:OrganizationID" json:"-"`
	Teams     []Team                `gorm:"foreignKey:OrganizationID" json:"-"`
	Equipment []Equipment           `gorm:"foreignKey:OrganizationID" json:"-"`
	Requests  []MaintenanceRequest  `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
