package schema

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result codes reported by the service in a messages document.
const (
	CodeResourceCreated = "MESSAGE_RESOURCE_CREATED"
	CodeResourceUpdated = "MESSAGE_RESOURCE_UPDATED"
	CodeResourceDeleted = "MESSAGE_RESOURCE_DELETED"
)

// Message is one (code, text) pair of a service response.
type Message struct {
	Code string `xml:"messageCode"`
	Text string `xml:"message"`
	ID   string `xml:"id,omitempty"`
}

func (m Message) String() string {
	if m.Code == "" {
		return m.Text
	}
	return m.Code + ": " + m.Text
}

type messagesXML struct {
	XMLName xml.Name  `xml:"messages"`
	Items   []Message `xml:"message"`
}

// DecodeMessages parses a messages document.
func DecodeMessages(data []byte) ([]Message, error) {
	var m messagesXML
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m.Items, nil
}

// MarshalMessages encodes a messages document.
func MarshalMessages(msgs ...Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{
		Name: xml.Name{Local: "common:messages"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:common"}, Value: CommonNamespace}},
	}
	if err := enc.EncodeElement(struct {
		Items []Message `xml:"message"`
	}{msgs}, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HasCode reports whether any message carries code.
func HasCode(msgs []Message, code string) bool {
	for _, m := range msgs {
		if m.Code == code {
			return true
		}
	}
	return false
}

// JoinMessages renders messages for error text.
func JoinMessages(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "; ")
}

var createdIDPattern = regexp.MustCompile(`id \[(\d+)\]`)

// CreatedID extracts the id announced by a MESSAGE_RESOURCE_CREATED message,
// e.g. "Resource with id [42] has been created.".
func CreatedID(msgs []Message) (int64, bool) {
	for _, m := range msgs {
		if m.Code != CodeResourceCreated {
			continue
		}
		match := createdIDPattern.FindStringSubmatch(m.Text)
		if match == nil {
			continue
		}
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}
