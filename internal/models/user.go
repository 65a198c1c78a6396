package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID             string    `json:"_id"`
	DisplayName    string    `json:"name"`
	Email          string    `json:"email"`
	PhotoURL       string    `json:"photoURL"`
	Role           Role      `json:"role"`
	IsPremium      bool      `json:"isPremium"`
	TotalLessons   int       `json:"totalLessons"`
	TotalFavorites int       `json:"totalFavorites"`
	TotalLikes     int       `json:"totalLikes"`
	PublicLessons  int       `json:"publicLessons"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts displayName as an alias of name.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var wire struct {
		plain
		AltName string `json:"displayName"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*u = User(wire.plain)
	if u.DisplayName == "" {
		u.DisplayName = wire.AltName
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// SyncRequest is the body of POST /users/sync.
type SyncRequest struct {
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
	Email    string `json:"email"`
}

// AdminStats is the overview returned by /admin/stats.
type AdminStats struct {
	TotalUsers      int `json:"totalUsers"`
	TotalLessons    int `json:"totalLessons"`
	ReportedLessons int `json:"reportedLessons"`
	TodayLessons    int `json:"todayLessons"`
	PremiumUsers    int `json:"premiumUsers"`
}
