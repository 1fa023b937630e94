package model

// Room is a team chat room. The core reads it but never writes it.
type Room struct {
	ID         int64  `gorm:"column:id;primaryKey" json:"id"`
	Name       string `gorm:"column:name;size:128" json:"name"`
	Active     bool   `gorm:"column:active" json:"active"`
	MaxMembers int    `gorm:"column:max_members" json:"max_members"`
}

func (Room) TableName() string { return "teams" }

// Member statuses as kept by the member directory.
const (
	MemberActive   = "ACTIVE"
	MemberInactive = "INACTIVE"
	MemberBanned   = "BANNED"
)

// Member is an entry of the external member directory.
type Member struct {
	ID     string `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name   string `gorm:"column:name;size:128" json:"name"`
	Status string `gorm:"column:status;size:16" json:"status"`
}

func (Member) TableName() string { return "members" }

func (m *Member) IsActive() bool { return m != nil && m.Status == MemberActive }
