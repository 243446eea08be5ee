package store

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Roadmap struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Category    string
	Slug        string
	ItemCount   int
	CreatedAt   time.Time
}

type Item struct {
	ID          string
	OwnerID     string
	RoadmapID   string
	Title       string
	Description string
	Position    int
	IsFinished  bool
	CreatedAt   time.Time
	ModifiedAt  time.Time
}
