// Package schema maps attachments and service messages to and from the
// listing service's XML schema.
//
// Attachment elements are polymorphic: the concrete variant is carried in
// xsi:type (e.g. xsi:type="common:Picture") or, for bare elements, in the
// root element name itself. Both are resolved case-insensitively.
package schema

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/estatesync/internal/models"
)

const (
	CommonNamespace = "http://rest.immobilienscout24.de/schema/common/1.0"
	OrderNamespace  = "http://rest.immobilienscout24.de/schema/attachmentsorder/1.0"
	VideoNamespace  = "http://rest.immobilienscout24.de/schema/videoupload/1.0"
	XSINamespace    = "http://www.w3.org/2001/XMLSchema-instance"
)

var ErrMalformed = errors.New("malformed xml document")

// attachmentXML is the union of all variant fields. Children are unqualified.
type attachmentXML struct {
	ID               string `xml:"id,attr,omitempty"`
	Title            string `xml:"title,omitempty"`
	ExternalID       string `xml:"externalId,omitempty"`
	ExternalCheckSum string `xml:"externalCheckSum,omitempty"`
	Floorplan        *bool  `xml:"floorplan,omitempty"`
	TitlePicture     *bool  `xml:"titlePicture,omitempty"`
	URL              string `xml:"url,omitempty"`
	VideoID          string `xml:"videoId,omitempty"`
}

func toWire(a *models.Attachment) attachmentXML {
	w := attachmentXML{
		Title:            a.Title,
		ExternalID:       a.ExternalID,
		ExternalCheckSum: a.ExternalCheckSum,
	}
	switch a.Kind {
	case models.KindPicture:
		w.Floorplan = &a.Floorplan
		w.TitlePicture = &a.TitlePicture
	case models.KindLink:
		w.URL = a.URL
	case models.KindStreamingVideo:
		w.VideoID = a.VideoID
	}
	return w
}

func fromWire(kind models.Kind, w attachmentXML) (*models.Attachment, error) {
	a := &models.Attachment{
		Kind:             kind,
		Title:            w.Title,
		ExternalID:       w.ExternalID,
		ExternalCheckSum: w.ExternalCheckSum,
		URL:              w.URL,
		VideoID:          w.VideoID,
	}
	if w.ID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(w.ID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment id %q", ErrMalformed, w.ID)
		}
		a.ID = id
	}
	if w.Floorplan != nil {
		a.Floorplan = *w.Floorplan
	}
	if w.TitlePicture != nil {
		a.TitlePicture = *w.TitlePicture
	}
	return a, nil
}

// ResolveKind determines the attachment variant of an element.
func ResolveKind(start xml.StartElement) (models.Kind, error) {
	for _, attr := range start.Attr {
		if attr.Name.Local == "type" && (attr.Name.Space == XSINamespace || attr.Name.Space == "xsi") {
			k, err := models.ParseKind(localPart(attr.Value))
			if err != nil {
				return "", fmt.Errorf("%w: xsi:type %q", err, attr.Value)
			}
			return k, nil
		}
	}
	k, err := models.ParseKind(start.Name.Local)
	if err != nil {
		return "", fmt.Errorf("%w: element <%s>", err, start.Name.Local)
	}
	return k, nil
}

func localPart(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

// MarshalAttachment encodes a as a standalone common:attachment document.
func MarshalAttachment(a *models.Attachment) ([]byte, error) {
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, a.Kind)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	start := attachmentStart("common:attachment", a, true)
	if err := enc.EncodeElement(toWire(a), start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalAttachments encodes a list document as returned by the list resource.
func MarshalAttachments(list []*models.Attachment) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	root := xml.StartElement{
		Name: xml.Name{Local: "common:attachments"},
		Attr: namespaceAttrs(),
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}
	for _, a := range list {
		if !a.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, a.Kind)
		}
		if err := enc.EncodeElement(toWire(a), attachmentStart("attachment", a, false)); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func namespaceAttrs() []xml.Attr {
	return []xml.Attr{
		{Name: xml.Name{Local: "xmlns:common"}, Value: CommonNamespace},
		{Name: xml.Name{Local: "xmlns:xsi"}, Value: XSINamespace},
	}
}

func attachmentStart(name string, a *models.Attachment, withNS bool) xml.StartElement {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if withNS {
		start.Attr = namespaceAttrs()
	}
	start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xsi:type"}, Value: "common:" + string(a.Kind)})
	if a.ID != 0 {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: strconv.FormatInt(a.ID, 10)})
	}
	return start
}

// DecodeAttachment decodes a single attachment document.
func DecodeAttachment(data []byte) (*models.Attachment, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	start, err := firstElement(dec)
	if err != nil {
		return nil, err
	}
	return decodeAttachmentElement(dec, start)
}

// DecodeAttachments decodes a list document. Every child element of the root
// is one attachment; variants may be mixed and keep their document order.
func DecodeAttachments(data []byte) ([]*models.Attachment, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	if _, err := firstElement(dec); err != nil {
		return nil, err
	}

	var out []*models.Attachment
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			a, err := decodeAttachmentElement(dec, t)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		case xml.EndElement:
			return out, nil
		}
	}
}

func decodeAttachmentElement(dec *xml.Decoder, start xml.StartElement) (*models.Attachment, error) {
	kind, err := ResolveKind(start)
	if err != nil {
		return nil, err
	}
	var w attachmentXML
	if err := dec.DecodeElement(&w, &start); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return fromWire(kind, w)
}

func firstElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return xml.StartElement{}, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}
