package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/source"
)

var ErrManifest = errors.New("invalid manifest")

// Manifest is the desired attachment list of one listing.
type Manifest struct {
	ListingID string
	Entries   []models.Entry
}

type manifestJSON struct {
	Listing     string          `json:"listing"`
	Attachments []manifestEntry `json:"attachments"`
}

type manifestEntry struct {
	ID           int64  `json:"id"`
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	ExternalID   string `json:"externalId"`
	Checksum     string `json:"checksum"`
	Path         string `json:"path"`
	URL          string `json:"url"`
	VideoID      string `json:"videoId"`
	Floorplan    bool   `json:"floorplan"`
	TitlePicture bool   `json:"titlePicture"`
}

// LoadManifest reads a JSON manifest. Relative local paths are resolved
// against the manifest's directory; s3:// paths are kept as they are.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc manifestJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrManifest, path, err)
	}

	dir := filepath.Dir(path)
	m := &Manifest{ListingID: doc.Listing, Entries: make([]models.Entry, 0, len(doc.Attachments))}
	for i, e := range doc.Attachments {
		kind, err := models.ParseKind(e.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %d: %w %q", ErrManifest, i, err, e.Kind)
		}

		p := e.Path
		if p != "" && !source.IsS3(p) && !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}

		m.Entries = append(m.Entries, models.Entry{
			Attachment: &models.Attachment{
				ID:               e.ID,
				Kind:             kind,
				Title:            e.Title,
				ExternalID:       e.ExternalID,
				ExternalCheckSum: e.Checksum,
				Floorplan:        e.Floorplan,
				TitlePicture:     e.TitlePicture,
				URL:              e.URL,
				VideoID:          e.VideoID,
			},
			Path: p,
		})
	}
	return m, nil
}
