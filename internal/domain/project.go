package domain

import "time"

// Project groups the deployments published by one owner.
type Project struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
