package databasemodule

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/tonearm/internal/database"
)

// Manifest describes catalog entries to import, typically from YAML:
//
//	users:
//	  - {id: alice, username: alice, email: alice@example.com}
//	artists:
//	  - name: Nina Simone
//	    albums:
//	      - title: Pastel Blues
//	        tracks:
//	          - {title: Be My Husband, path: /music/01.flac, owner: alice, number: 1}
type Manifest struct {
	Users   []ManifestUser   `yaml:"users"`
	Artists []ManifestArtist `yaml:"artists"`
}

type ManifestUser struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Admin    bool   `yaml:"admin"`
}

type ManifestArtist struct {
	ID     string          `yaml:"id"`
	Name   string          `yaml:"name"`
	Albums []ManifestAlbum `yaml:"albums"`
}

type ManifestAlbum struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	ReleaseDate string          `yaml:"release_date"`
	Tracks      []ManifestTrack `yaml:"tracks"`
}

type ManifestTrack struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Path     string `yaml:"path"`
	Owner    string `yaml:"owner"`
	Number   int    `yaml:"number"`
	Duration int    `yaml:"duration"`
}

// ImportStats counts imported rows.
type ImportStats struct {
	Users   int `json:"users"`
	Artists int `json:"artists"`
	Albums  int `json:"albums"`
	Tracks  int `json:"tracks"`
}

// LoadManifest reads a YAML catalog manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// stableID derives an ID from natural keys so re-importing a manifest
// updates rows instead of duplicating them.
func stableID(id string, parts ...string) string {
	if id != "" {
		return id
	}
	key := ""
	for _, p := range parts {
		key += p + "\x00"
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// ImportCatalog upserts every manifest entry in a single transaction.
func (tm *TransactionManager) ImportCatalog(ctx context.Context, m *Manifest) (ImportStats, error) {
	var stats ImportStats
	err := tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})

		for _, u := range m.Users {
			if u.Username == "" {
				return fmt.Errorf("user without username")
			}
			row := database.User{
				ID:       stableID(u.ID, "user", u.Username),
				Username: u.Username,
				Email:    u.Email,
				IsAdmin:  u.Admin,
			}
			if err := upsert.Create(&row).Error; err != nil {
				return fmt.Errorf("user %s: %w", u.Username, err)
			}
			stats.Users++
		}

		for _, a := range m.Artists {
			if a.Name == "" {
				return fmt.Errorf("artist without name")
			}
			artist := database.Artist{ID: stableID(a.ID, "artist", a.Name), Name: a.Name}
			if err := upsert.Create(&artist).Error; err != nil {
				return fmt.Errorf("artist %s: %w", a.Name, err)
			}
			stats.Artists++

			for _, al := range a.Albums {
				album := database.Album{
					ID:       stableID(al.ID, "album", artist.ID, al.Title),
					Title:    al.Title,
					ArtistID: artist.ID,
				}
				if al.ReleaseDate != "" {
					released, err := time.Parse("2006-01-02", al.ReleaseDate)
					if err != nil {
						return fmt.Errorf("album %s: invalid release_date: %w", al.Title, err)
					}
					album.ReleaseDate = &released
				}
				if err := upsert.Omit("Artist", "Tracks", "CoverUpdatedAt").Create(&album).Error; err != nil {
					return fmt.Errorf("album %s: %w", al.Title, err)
				}
				stats.Albums++

				for _, t := range al.Tracks {
					if t.Path == "" {
						return fmt.Errorf("track %q of album %s has no path", t.Title, al.Title)
					}
					track := database.Track{
						ID:          stableID(t.ID, "track", album.ID, t.Path),
						Title:       t.Title,
						AlbumID:     album.ID,
						ArtistID:    artist.ID,
						Path:        t.Path,
						TrackNumber: t.Number,
						Duration:    t.Duration,
					}
					if t.Owner != "" {
						owner := t.Owner
						track.OwnerID = &owner
					}
					if err := upsert.Create(&track).Error; err != nil {
						return fmt.Errorf("track %s: %w", t.Path, err)
					}
					stats.Tracks++
				}
			}
		}
		return nil
	})
	return stats, err
}
