// Package gateway wraps the attachment resources of one real estate listing.
//
// Every write operation checks the result code of the service's messages
// document and reports anything other than the expected confirmation as a
// *restapi.APIError carrying ErrCreate, ErrUpdate or ErrDelete.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/estatesync/internal/logging"
	"github.com/dmitrijs2005/estatesync/internal/metrics"
	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/restapi"
	"github.com/dmitrijs2005/estatesync/internal/schema"
)

var (
	ErrCreate          = errors.New("create attachment failed")
	ErrUpdate          = errors.New("update failed")
	ErrDelete          = errors.New("delete attachment failed")
	ErrVideoTicket     = errors.New("video upload ticket unavailable")
	ErrUnsupportedKind = errors.New("unsupported attachment kind")
)

const (
	attachmentsPath = "user/{user}/realestate/{realestate}/attachment"
	attachmentPath  = "user/{user}/realestate/{realestate}/attachment/{attachment}"
	orderPath       = "user/{user}/realestate/{realestate}/attachment/attachmentsorder"
	videoTicketPath = "videouploadticket"
)

// AttachmentGateway is the remote attachment set of one listing.
type AttachmentGateway interface {
	List(ctx context.Context) ([]*models.Attachment, error)
	Get(ctx context.Context, id int64) (*models.Attachment, error)
	Delete(ctx context.Context, id int64) error
	CreateFile(ctx context.Context, a *models.Attachment, content []byte, fileName, mimeType string) (*models.Attachment, error)
	CreateLink(ctx context.Context, a *models.Attachment) (*models.Attachment, error)
	CreateStreamingVideo(ctx context.Context, a *models.Attachment, content []byte, fileName string) (*models.Attachment, error)
	Update(ctx context.Context, a *models.Attachment) error
	GetOrder(ctx context.Context) ([]int64, error)
	SetOrder(ctx context.Context, ids []int64) error
}

// Doer executes REST requests; *restapi.Client implements it.
type Doer interface {
	Do(ctx context.Context, req restapi.Request) (*restapi.Response, error)
}

// VideoUploader posts a binary to a third-party upload URL;
// *netx.VideoHost implements it.
type VideoUploader interface {
	Upload(ctx context.Context, uploadURL, auth, fileName string, content []byte) error
}

type Gateway struct {
	api          Doer
	videos       VideoUploader
	user         string
	realEstateID string
	logger       logging.Logger
	metrics      metrics.Recorder
}

type Option func(*Gateway)

// WithUser sets the user path segment; the default is "me".
func WithUser(user string) Option {
	return func(g *Gateway) { g.user = user }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New binds a gateway to the listing realEstateID.
func New(api Doer, videos VideoUploader, realEstateID string, opts ...Option) *Gateway {
	g := &Gateway{
		api:          api,
		videos:       videos,
		user:         "me",
		realEstateID: realEstateID,
		logger:       logging.Nop(),
		metrics:      metrics.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) params(extra ...string) map[string]string {
	p := map[string]string{"user": g.user, "realestate": g.realEstateID}
	for i := 0; i+1 < len(extra); i += 2 {
		p[extra[i]] = extra[i+1]
	}
	return p
}

func (g *Gateway) observe(op string, start time.Time, err *error) {
	g.metrics.ObserveRequest(op, *err, time.Since(start))
}

func (g *Gateway) List(ctx context.Context) (_ []*models.Attachment, err error) {
	defer g.observe("list", time.Now(), &err)

	resp, err := g.api.Do(ctx, restapi.Request{Method: http.MethodGet, Path: attachmentsPath, Params: g.params()})
	if err != nil {
		return nil, relabel(err, "list attachments", "of "+g.realEstateID, nil)
	}
	list, err := schema.DecodeAttachments(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("list attachments of %s: %w", g.realEstateID, err)
	}
	g.logger.Debug(ctx, "attachments listed", "realestate", g.realEstateID, "count", len(list))
	return list, nil
}

func (g *Gateway) Get(ctx context.Context, id int64) (_ *models.Attachment, err error) {
	defer g.observe("get", time.Now(), &err)

	resp, err := g.api.Do(ctx, restapi.Request{
		Method: http.MethodGet,
		Path:   attachmentPath,
		Params: g.params("attachment", strconv.FormatInt(id, 10)),
	})
	if err != nil {
		return nil, relabel(err, "get attachment", idSubject(id), nil)
	}
	a, err := schema.DecodeAttachment(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", idSubject(id), err)
	}
	return a, nil
}

func (g *Gateway) Delete(ctx context.Context, id int64) (err error) {
	defer g.observe("delete", time.Now(), &err)

	const op = "delete attachment"
	resp, err := g.api.Do(ctx, restapi.Request{
		Method: http.MethodDelete,
		Path:   attachmentPath,
		Params: g.params("attachment", strconv.FormatInt(id, 10)),
	})
	if err != nil {
		return relabel(err, op, idSubject(id), ErrDelete)
	}
	if _, err := confirm(resp, schema.CodeResourceDeleted, op, idSubject(id), ErrDelete); err != nil {
		return err
	}
	g.logger.Debug(ctx, "attachment deleted", "id", id)
	return nil
}

// CreateFile uploads a picture or PDF as a multipart request with a
// "metadata" XML part and an "attachment" binary part. On success a.ID is
// set and a is returned.
func (g *Gateway) CreateFile(ctx context.Context, a *models.Attachment, content []byte, fileName, mimeType string) (_ *models.Attachment, err error) {
	defer g.observe("create_file", time.Now(), &err)

	if a.Kind != models.KindPicture && a.Kind != models.KindPDFDocument {
		return nil, fmt.Errorf("%w: %s as file", ErrUnsupportedKind, a.Kind)
	}
	meta, err := marshalNew(a)
	if err != nil {
		return nil, err
	}
	return g.create(ctx, a, restapi.Request{
		Method: http.MethodPost,
		Path:   attachmentsPath,
		Params: g.params(),
		Parts: []restapi.Part{
			{Name: "metadata", FileName: "body.xml", ContentType: "application/xml", Data: meta},
			{Name: "attachment", FileName: fileName, ContentType: mimeType, Data: content},
		},
	})
}

// CreateLink registers a link attachment; the body is the metadata only.
func (g *Gateway) CreateLink(ctx context.Context, a *models.Attachment) (_ *models.Attachment, err error) {
	defer g.observe("create_link", time.Now(), &err)

	if a.Kind != models.KindLink {
		return nil, fmt.Errorf("%w: %s as link", ErrUnsupportedKind, a.Kind)
	}
	body, err := marshalNew(a)
	if err != nil {
		return nil, err
	}
	return g.create(ctx, a, restapi.Request{
		Method: http.MethodPost,
		Path:   attachmentsPath,
		Params: g.params(),
		Body:   body,
	})
}

func (g *Gateway) create(ctx context.Context, a *models.Attachment, req restapi.Request) (*models.Attachment, error) {
	const op = "create attachment"
	resp, err := g.api.Do(ctx, req)
	if err != nil {
		return nil, relabel(err, op, titleSubject(a), ErrCreate)
	}
	msgs, err := confirm(resp, schema.CodeResourceCreated, op, titleSubject(a), ErrCreate)
	if err != nil {
		return nil, err
	}
	id, ok := schema.CreatedID(msgs)
	if !ok {
		return nil, &restapi.APIError{
			Op:         op,
			Subject:    titleSubject(a),
			StatusCode: resp.StatusCode,
			Messages:   msgs,
			Kind:       ErrCreate,
		}
	}
	a.ID = id
	g.logger.Debug(ctx, "attachment created", "id", id, "kind", a.Kind, "title", a.Title)
	return a, nil
}

// Update replaces the metadata of an existing attachment.
func (g *Gateway) Update(ctx context.Context, a *models.Attachment) (err error) {
	defer g.observe("update", time.Now(), &err)

	const op = "update attachment"
	if a.ID == 0 {
		return fmt.Errorf("%w: %s %s has no id", ErrUpdate, op, titleSubject(a))
	}
	body, err := schema.MarshalAttachment(a)
	if err != nil {
		return err
	}
	resp, err := g.api.Do(ctx, restapi.Request{
		Method: http.MethodPut,
		Path:   attachmentPath,
		Params: g.params("attachment", strconv.FormatInt(a.ID, 10)),
		Body:   body,
	})
	if err != nil {
		return relabel(err, op, idSubject(a.ID), ErrUpdate)
	}
	if _, err := confirm(resp, schema.CodeResourceUpdated, op, idSubject(a.ID), ErrUpdate); err != nil {
		return err
	}
	g.logger.Debug(ctx, "attachment updated", "id", a.ID, "title", a.Title)
	return nil
}

func (g *Gateway) GetOrder(ctx context.Context) (_ []int64, err error) {
	defer g.observe("get_order", time.Now(), &err)

	resp, err := g.api.Do(ctx, restapi.Request{Method: http.MethodGet, Path: orderPath, Params: g.params()})
	if err != nil {
		return nil, relabel(err, "get attachment order", "of "+g.realEstateID, nil)
	}
	ids, err := schema.DecodeOrder(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get attachment order of %s: %w", g.realEstateID, err)
	}
	return ids, nil
}

// SetOrder replaces the display order with ids.
func (g *Gateway) SetOrder(ctx context.Context, ids []int64) (err error) {
	defer g.observe("set_order", time.Now(), &err)

	const op = "set attachment order"
	body, err := schema.MarshalOrder(ids)
	if err != nil {
		return err
	}
	resp, err := g.api.Do(ctx, restapi.Request{Method: http.MethodPut, Path: orderPath, Params: g.params(), Body: body})
	if err != nil {
		return relabel(err, op, "of "+g.realEstateID, ErrUpdate)
	}
	if _, err := confirm(resp, schema.CodeResourceUpdated, op, "of "+g.realEstateID, ErrUpdate); err != nil {
		return err
	}
	g.logger.Debug(ctx, "attachment order set", "ids", ids)
	return nil
}

// marshalNew encodes a without its id, as the service assigns one.
func marshalNew(a *models.Attachment) ([]byte, error) {
	c := a.Clone()
	c.ID = 0
	return schema.MarshalAttachment(c)
}

// confirm checks that the response messages carry code.
func confirm(resp *restapi.Response, code, op, subject string, kind error) ([]schema.Message, error) {
	msgs, err := resp.Messages()
	if err != nil || !schema.HasCode(msgs, code) {
		return msgs, &restapi.APIError{
			Op:         op,
			Subject:    subject,
			StatusCode: resp.StatusCode,
			Messages:   msgs,
			Kind:       kind,
			Err:        err,
		}
	}
	return msgs, nil
}

// relabel attaches the gateway operation to an error from the transport.
func relabel(err error, op, subject string, kind error) error {
	var apiErr *restapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.WithOp(op, subject, kind)
	}
	if subject == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s %s: %w", op, subject, err)
}

func idSubject(id int64) string {
	return "#" + strconv.FormatInt(id, 10)
}

func titleSubject(a *models.Attachment) string {
	return strconv.Quote(a.Title)
}
