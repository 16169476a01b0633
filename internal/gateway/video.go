package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/restapi"
	"github.com/dmitrijs2005/estatesync/internal/schema"
)

// VideoState is a phase of the streaming video upload handshake.
type VideoState string

const (
	StateRequestingTicket      VideoState = "requesting_ticket"
	StateUploadingBinary       VideoState = "uploading_binary"
	StateRegisteringAttachment VideoState = "registering_attachment"
	StateDone                  VideoState = "done"
	StateFailed                VideoState = "failed"
)

type videoTransition struct {
	From VideoState
	To   VideoState
}

var videoTransitions = map[videoTransition]bool{
	{StateRequestingTicket, StateUploadingBinary}:      true,
	{StateUploadingBinary, StateRegisteringAttachment}: true,
	{StateRegisteringAttachment, StateDone}:            true,
	{StateRequestingTicket, StateFailed}:               true,
	{StateUploadingBinary, StateFailed}:                true,
	{StateRegisteringAttachment, StateFailed}:          true,
}

// ValidateVideoTransition checks a handshake state change. Done and Failed
// are terminal; there are no retries.
func ValidateVideoTransition(from, to VideoState) error {
	if !videoTransitions[videoTransition{From: from, To: to}] {
		return fmt.Errorf("invalid video handshake transition from %s to %s", from, to)
	}
	return nil
}

// HandshakeError reports the phase in which a video upload failed. The
// wrapped error is ErrVideoTicket, a *netx.VideoUploadError or a
// *restapi.APIError depending on State.
type HandshakeError struct {
	State VideoState
	Err   error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("video handshake failed while %s: %v", e.State, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

type videoHandshake struct {
	state VideoState
}

func (h *videoHandshake) advance(to VideoState) error {
	if err := ValidateVideoTransition(h.state, to); err != nil {
		return err
	}
	h.state = to
	return nil
}

// fail moves the handshake to Failed and wraps err with the failing phase.
func (h *videoHandshake) fail(err error) error {
	failed := h.state
	h.state = StateFailed
	return &HandshakeError{State: failed, Err: err}
}

// CreateStreamingVideo runs the three-phase handshake: fetch an upload
// ticket, post the binary to the video host, then register the attachment
// with the provider's video id. A failure in any phase aborts the call.
// On success a.ID and a.VideoID are set and a is returned.
func (g *Gateway) CreateStreamingVideo(ctx context.Context, a *models.Attachment, content []byte, fileName string) (_ *models.Attachment, err error) {
	defer g.observe("create_video", time.Now(), &err)

	if a.Kind != models.KindStreamingVideo {
		return nil, fmt.Errorf("%w: %s as video", ErrUnsupportedKind, a.Kind)
	}

	h := &videoHandshake{state: StateRequestingTicket}

	ticket, err := g.requestTicket(ctx)
	if err != nil {
		return nil, h.fail(err)
	}
	if err := h.advance(StateUploadingBinary); err != nil {
		return nil, err
	}
	g.logger.Debug(ctx, "video ticket issued", "video_id", ticket.VideoID)

	if err := g.videos.Upload(ctx, ticket.UploadURL, ticket.Auth, fileName, content); err != nil {
		return nil, h.fail(err)
	}
	if err := h.advance(StateRegisteringAttachment); err != nil {
		return nil, err
	}

	reg := a.Clone()
	reg.VideoID = ticket.VideoID
	body, err := marshalNew(reg)
	if err != nil {
		return nil, h.fail(err)
	}
	if _, err := g.create(ctx, reg, restapi.Request{
		Method: http.MethodPost,
		Path:   attachmentsPath,
		Params: g.params(),
		Body:   body,
	}); err != nil {
		return nil, h.fail(err)
	}
	if err := h.advance(StateDone); err != nil {
		return nil, err
	}

	a.ID = reg.ID
	a.VideoID = reg.VideoID
	return a, nil
}

func (g *Gateway) requestTicket(ctx context.Context) (*schema.VideoUploadTicket, error) {
	resp, err := g.api.Do(ctx, restapi.Request{Method: http.MethodGet, Path: videoTicketPath})
	if err != nil {
		return nil, relabel(err, "request video upload ticket", "", ErrVideoTicket)
	}
	ticket, err := schema.DecodeVideoTicket(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVideoTicket, err)
	}
	if ticket.UploadURL == "" || ticket.VideoID == "" {
		return nil, fmt.Errorf("%w: ticket lacks upload url or video id", ErrVideoTicket)
	}
	return ticket, nil
}
