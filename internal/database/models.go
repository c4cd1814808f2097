package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account that can own songs
type User struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// =============================================================================
// MUSIC TABLES
// =============================================================================

// Artist table
type Artist struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Album table. Albums have no owner column; who may edit one is derived from its tracks.
type Album struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title          string     `gorm:"not null;index" json:"title"`
	ArtistID       string     `gorm:"type:varchar(36);not null;index" json:"artist_id"` // FK to Artist
	Artist         Artist     `gorm:"foreignKey:ArtistID" json:"artist,omitempty"`
	ReleaseDate    *time.Time `json:"release_date"`
	CoverUpdatedAt *time.Time `json:"cover_updated_at"`
	Tracks         []Track    `gorm:"foreignKey:AlbumID" json:"tracks,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Track table
type Track struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title       string    `gorm:"not null;index" json:"title"`
	AlbumID     string    `gorm:"type:varchar(36);not null;index" json:"album_id"`  // FK to Album
	ArtistID    string    `gorm:"type:varchar(36);not null;index" json:"artist_id"` // FK to Artist
	OwnerID     *string   `gorm:"type:varchar(36);index" json:"owner_id"`           // nil for system imports
	Path        string    `gorm:"not null" json:"path"`
	TrackNumber int       `json:"track_number"`
	Duration    int       `json:"duration"` // In seconds
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate hooks assign uuid primary keys when the caller left them empty.

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (a *Artist) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *Album) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// AllModels lists every table for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{&User{}, &Artist{}, &Album{}, &Track{}}
}
