// Package models defines the attachment data model shared by the REST gateway
// and the synchronization service.
package models

import (
	"errors"
	"slices"
	"strings"
)

// Kind classifies an attachment variant. The value doubles as the schema
// type name used on the wire (xsi:type="common:<Kind>").
type Kind string

const (
	KindPicture        Kind = "Picture"
	KindPDFDocument    Kind = "PDFDocument"
	KindLink           Kind = "Link"
	KindStreamingVideo Kind = "StreamingVideo"
)

var ErrUnknownKind = errors.New("unknown attachment kind")

var kinds = []Kind{KindPicture, KindPDFDocument, KindLink, KindStreamingVideo}

// ParseKind resolves a schema type name case-insensitively.
func ParseKind(name string) (Kind, error) {
	for _, k := range kinds {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
	}
	return "", ErrUnknownKind
}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	return slices.Contains(kinds, k)
}

// Attachment is a media or link item of a real estate listing.
//
// Only the fields relevant to a Kind are meaningful: Floorplan and
// TitlePicture for pictures, URL for links, VideoID for streaming videos.
type Attachment struct {
	// ID is assigned by the remote service; 0 until the attachment exists remotely.
	ID int64

	Kind  Kind
	Title string

	// ExternalID is a caller-assigned (or derived) identifier stable across runs.
	ExternalID string
	// ExternalCheckSum is the hex content digest of the uploaded file.
	ExternalCheckSum string

	Floorplan    bool
	TitlePicture bool

	URL string

	VideoID string
}

// SameIdentity reports whether a and b denote the same attachment: equal
// remote ids, equal non-empty external ids, or links with equal title and URL.
func (a *Attachment) SameIdentity(b *Attachment) bool {
	if a == nil || b == nil {
		return false
	}
	if a.ID != 0 && a.ID == b.ID {
		return true
	}
	if a.ExternalID != "" && a.ExternalID == b.ExternalID {
		return true
	}
	return a.Kind == KindLink && b.Kind == KindLink &&
		a.Title == b.Title && a.URL == b.URL
}

// ContentEqual reports whether b is the same attachment as a with an
// unchanged payload, so no remote action is needed.
func (a *Attachment) ContentEqual(b *Attachment) bool {
	if !a.SameIdentity(b) || a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindLink {
		return a.URL == b.URL
	}
	return a.ExternalCheckSum != "" && a.ExternalCheckSum == b.ExternalCheckSum
}

// ParticipatesInOrder reports whether the attachment is part of the
// listing's display order. Links and videos are not.
func (a *Attachment) ParticipatesInOrder() bool {
	return a.Kind == KindPicture || a.Kind == KindPDFDocument
}

// Clone returns a shallow copy of a.
func (a *Attachment) Clone() *Attachment {
	c := *a
	return &c
}
