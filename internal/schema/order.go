package schema

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

type attachmentsOrderXML struct {
	IDs []int64 `xml:"attachmentId"`
}

// DecodeOrder parses an attachmentsorder document.
func DecodeOrder(data []byte) ([]int64, error) {
	var o attachmentsOrderXML
	if err := xml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return o.IDs, nil
}

// MarshalOrder encodes ids as an attachmentsorder document.
func MarshalOrder(ids []int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{
		Name: xml.Name{Local: "attachmentsorder:attachmentsorder"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:attachmentsorder"}, Value: OrderNamespace}},
	}
	if err := enc.EncodeElement(attachmentsOrderXML{IDs: ids}, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VideoUploadTicket authorizes one binary upload to the video host.
type VideoUploadTicket struct {
	Auth      string `xml:"auth"`
	UploadURL string `xml:"uploadUrl"`
	VideoID   string `xml:"videoId"`
}

// DecodeVideoTicket parses a videoUploadTicket document.
func DecodeVideoTicket(data []byte) (*VideoUploadTicket, error) {
	var t VideoUploadTicket
	if err := xml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return &t, nil
}

// MarshalVideoTicket encodes t as a videoUploadTicket document.
func MarshalVideoTicket(t *VideoUploadTicket) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{
		Name: xml.Name{Local: "videoupload:videoUploadTicket"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:videoupload"}, Value: VideoNamespace}},
	}
	if err := enc.EncodeElement(t, start); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
