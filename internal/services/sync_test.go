package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/dmitrijs2005/estatesync/internal/checksum"
	"github.com/dmitrijs2005/estatesync/internal/gateway"
	"github.com/dmitrijs2005/estatesync/internal/metrics"
	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/netx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway keeps the remote attachment set in memory and records calls.
type fakeGateway struct {
	gateway.AttachmentGateway

	items  []*models.Attachment
	order  []int64
	nextID int64
	calls  []string

	videoErr error
	mimes    []string
}

func (g *fakeGateway) List(context.Context) ([]*models.Attachment, error) {
	g.calls = append(g.calls, "list")
	out := make([]*models.Attachment, 0, len(g.items))
	for _, a := range g.items {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (g *fakeGateway) Delete(_ context.Context, id int64) error {
	g.calls = append(g.calls, fmt.Sprintf("delete %d", id))
	g.items = slices.DeleteFunc(g.items, func(a *models.Attachment) bool { return a.ID == id })
	g.order = slices.DeleteFunc(g.order, func(o int64) bool { return o == id })
	return nil
}

func (g *fakeGateway) add(a *models.Attachment) *models.Attachment {
	g.nextID++
	a.ID = g.nextID
	g.items = append(g.items, a.Clone())
	if a.ParticipatesInOrder() {
		g.order = append(g.order, a.ID)
	}
	return a
}

func (g *fakeGateway) CreateFile(_ context.Context, a *models.Attachment, _ []byte, _, mimeType string) (*models.Attachment, error) {
	g.calls = append(g.calls, "create_file")
	g.mimes = append(g.mimes, mimeType)
	return g.add(a), nil
}

func (g *fakeGateway) CreateLink(_ context.Context, a *models.Attachment) (*models.Attachment, error) {
	g.calls = append(g.calls, "create_link")
	return g.add(a), nil
}

func (g *fakeGateway) CreateStreamingVideo(_ context.Context, a *models.Attachment, _ []byte, _ string) (*models.Attachment, error) {
	g.calls = append(g.calls, "create_video")
	if g.videoErr != nil {
		return nil, g.videoErr
	}
	a.VideoID = "vid-1"
	return g.add(a), nil
}

func (g *fakeGateway) Update(_ context.Context, a *models.Attachment) error {
	g.calls = append(g.calls, fmt.Sprintf("update %d", a.ID))
	for i, it := range g.items {
		if it.ID == a.ID {
			g.items[i] = a.Clone()
		}
	}
	return nil
}

func (g *fakeGateway) GetOrder(context.Context) ([]int64, error) {
	g.calls = append(g.calls, "get_order")
	return slices.Clone(g.order), nil
}

func (g *fakeGateway) SetOrder(_ context.Context, ids []int64) error {
	g.calls = append(g.calls, "set_order")
	g.order = slices.Clone(ids)
	return nil
}

// writes counts calls that change remote state.
func (g *fakeGateway) writes() []string {
	var out []string
	for _, c := range g.calls {
		if c != "list" && c != "get_order" {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) count(prefix string) int {
	n := 0
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type memOpener map[string][]byte

func (m memOpener) Open(_ context.Context, p string) (io.ReadCloser, error) {
	data, ok := m[p]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n")
	jpgA      = append(slices.Clone(pngHeader), "picture-a"...)
	jpgB      = append(slices.Clone(pngHeader), "picture-b"...)
	jpgC      = append(slices.Clone(pngHeader), "picture-c"...)
)

func files() memOpener {
	return memOpener{"/p/a.png": jpgA, "/p/b.png": jpgB, "/p/c.png": jpgC}
}

func picture(title, path string) models.Entry {
	return models.Entry{Attachment: &models.Attachment{Kind: models.KindPicture, Title: title}, Path: path}
}

func TestSynchronize_CreatesAndFillsDerivedFields(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{picture("A", "/p/a.png"), picture("B", "/p/b.png")}
	report, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)

	a := entries[0].Attachment
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, checksum.Bytes(jpgA), a.ExternalCheckSum)
	assert.Equal(t, checksum.ExternalID("A", "/p/a.png"), a.ExternalID)
	assert.Equal(t, int64(2), entries[1].Attachment.ID)
	assert.Equal(t, []string{"image/png", "image/png"}, gw.mimes)

	require.Len(t, report.Results, 2)
	assert.Equal(t, models.ActionCreated, report.Results[0].Action)
	assert.Same(t, a, report.Results[0].Entry.Attachment)
	assert.NotEmpty(t, report.RunID)
}

func TestSynchronize_Idempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	desired := func() []models.Entry {
		return []models.Entry{
			picture("A", "/p/a.png"),
			picture("B", "/p/b.png"),
			{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", URL: "https://example.org"}},
		}
	}

	_, err := svc.Synchronize(context.Background(), desired())
	require.NoError(t, err)
	require.NotEmpty(t, gw.writes())

	gw.calls = nil
	second := desired()
	report, err := svc.Synchronize(context.Background(), second)
	require.NoError(t, err)

	assert.Empty(t, gw.writes())
	assert.Equal(t, []string{"list", "get_order"}, gw.calls)
	assert.Empty(t, report.Deleted)
	assert.Nil(t, report.Order)
	for _, r := range report.Results {
		assert.Equal(t, models.ActionKept, r.Action)
	}
	assert.Equal(t, int64(3), second[2].Attachment.ID)
}

func TestSynchronize_OrderPreservation(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{picture("P1", "/p/a.png"), picture("P3", "/p/c.png"), picture("P2", "/p/b.png")}
	_, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)

	// Reversing the desired order of existing pictures only reorders.
	gw.calls = nil
	reversed := []models.Entry{picture("P2", "/p/b.png"), picture("P3", "/p/c.png"), picture("P1", "/p/a.png")}
	report, err := svc.Synchronize(context.Background(), reversed)
	require.NoError(t, err)

	ids := []int64{reversed[0].Attachment.ID, reversed[1].Attachment.ID, reversed[2].Attachment.ID}
	assert.Equal(t, ids, gw.order)
	assert.Equal(t, ids, report.Order)
	assert.Equal(t, []string{"set_order"}, gw.writes())
}

func TestSynchronize_OrderIgnoresStaleIDsAndNonOrderedKinds(t *testing.T) {
	gw := &fakeGateway{
		items: []*models.Attachment{
			{ID: 1, Kind: models.KindPicture, Title: "A", ExternalID: "a", ExternalCheckSum: checksum.Bytes(jpgA)},
			{ID: 2, Kind: models.KindPicture, Title: "B", ExternalID: "b", ExternalCheckSum: checksum.Bytes(jpgB)},
			{ID: 3, Kind: models.KindLink, Title: "Site", URL: "u"},
		},
		order:  []int64{99, 1, 42, 2},
		nextID: 3,
	}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{
		{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", URL: "u"}},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "A", ExternalID: "a"}, Path: "/p/a.png"},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "B", ExternalID: "b"}, Path: "/p/b.png"},
	}
	_, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)
	assert.Empty(t, gw.writes())
}

func TestSynchronize_SingleOrderedItemNeverReorders(t *testing.T) {
	gw := &fakeGateway{
		items: []*models.Attachment{
			{ID: 1, Kind: models.KindPicture, Title: "A", ExternalID: "a", ExternalCheckSum: checksum.Bytes(jpgA)},
			{ID: 2, Kind: models.KindLink, Title: "Site", URL: "u"},
		},
		order:  []int64{77},
		nextID: 2,
	}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{
		{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", URL: "u"}},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "A", ExternalID: "a"}, Path: "/p/a.png"},
	}
	_, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)
	assert.Zero(t, gw.count("get_order"))
	assert.Zero(t, gw.count("set_order"))
}

func TestSynchronize_ContentChangeRecreates(t *testing.T) {
	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 1, Kind: models.KindPicture, Title: "A", ExternalID: "Z", ExternalCheckSum: "abc"}},
		nextID: 1,
	}
	svc := NewAttachmentSyncService(gw, files())

	entry := models.Entry{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "A", ExternalID: "Z"}, Path: "/p/a.png"}
	report, err := svc.Synchronize(context.Background(), []models.Entry{entry})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete 1", "create_file"}, gw.writes())
	assert.NotEqual(t, int64(1), entry.Attachment.ID)
	assert.NotZero(t, entry.Attachment.ID)
	assert.Equal(t, checksum.Bytes(jpgA), entry.Attachment.ExternalCheckSum)
	assert.Equal(t, []int64{1}, report.Deleted)
}

func TestSynchronize_TitleOnlyChangeUpdates(t *testing.T) {
	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 1, Kind: models.KindPicture, Title: "Old", ExternalID: "Z", ExternalCheckSum: checksum.Bytes(jpgA)}},
		nextID: 1,
	}
	svc := NewAttachmentSyncService(gw, files())

	entry := models.Entry{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "New", ExternalID: "Z"}, Path: "/p/a.png"}
	report, err := svc.Synchronize(context.Background(), []models.Entry{entry})
	require.NoError(t, err)

	assert.Equal(t, []string{"update 1"}, gw.writes())
	assert.Equal(t, int64(1), entry.Attachment.ID)
	assert.Equal(t, "New", gw.items[0].Title)
	assert.Equal(t, models.ActionUpdated, report.Results[0].Action)
}

func TestSynchronize_LinkIdentityByTitleAndURL(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	for i := 0; i < 2; i++ {
		entries := []models.Entry{{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", URL: "https://example.org"}}}
		_, err := svc.Synchronize(context.Background(), entries)
		require.NoError(t, err)
		assert.Equal(t, int64(1), entries[0].Attachment.ID)
	}
	assert.Equal(t, 1, gw.count("create_link"))
	assert.Len(t, gw.items, 1)
}

func TestSynchronize_LinkURLChangeRecreates(t *testing.T) {
	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 1, Kind: models.KindLink, Title: "Site", ExternalID: "L", URL: "https://old"}},
		nextID: 1,
	}
	svc := NewAttachmentSyncService(gw, files())

	entry := models.Entry{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", ExternalID: "L", URL: "https://new"}}
	_, err := svc.Synchronize(context.Background(), []models.Entry{entry})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete 1", "create_link"}, gw.writes())
}

func TestSynchronize_EndToEnd(t *testing.T) {
	pic := append(slices.Clone(pngHeader), "picture-H"...)
	video := []byte("video-bytes")
	h := checksum.Bytes(pic)

	gw := &fakeGateway{
		items: []*models.Attachment{
			{ID: 1, Kind: models.KindPicture, Title: "Old", ExternalID: "Z0", ExternalCheckSum: h},
			{ID: 2, Kind: models.KindPicture, Title: "Bath", ExternalID: "Z2", ExternalCheckSum: "OLD"},
			{ID: 30, Kind: models.KindPicture, Title: "Garden", ExternalID: "Z3", ExternalCheckSum: h},
			{ID: 3, Kind: models.KindStreamingVideo, Title: "Tour", ExternalID: "V", ExternalCheckSum: checksum.Bytes(video), VideoID: "vid-3"},
			{ID: 4, Kind: models.KindPDFDocument, Title: "Expose", ExternalID: "P1", ExternalCheckSum: "HP"},
			{ID: 5, Kind: models.KindLink, Title: "Site", URL: "https://example.org"},
		},
		order:  []int64{1, 2, 30, 4},
		nextID: 5,
	}
	opener := memOpener{"/p/living.png": jpgA, "/p/bath.png": pic, "/p/garden.png": pic, "/v/tour.mp4": video}
	svc := NewAttachmentSyncService(gw, opener)

	entries := []models.Entry{
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "Living", ExternalID: "Z1"}, Path: "/p/living.png"},
		{Attachment: &models.Attachment{Kind: models.KindLink, Title: "Site", URL: "https://example.org"}},
		{Attachment: &models.Attachment{Kind: models.KindStreamingVideo, Title: "Tour", ExternalID: "V"}, Path: "/v/tour.mp4"},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "Bath", ExternalID: "Z2"}, Path: "/p/bath.png"},
		{Attachment: &models.Attachment{Kind: models.KindPDFDocument, Title: "Expose 2024", ExternalID: "P1", ExternalCheckSum: "HP"}},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "Garden", ExternalID: "Z3"}, Path: "/p/garden.png"},
	}

	report, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete 1", "delete 2",
		"create_file", "create_file",
		"update 4",
		"set_order",
	}, gw.writes())
	assert.Equal(t, []int64{1, 2}, report.Deleted)

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Attachment.ID)
	}
	assert.Equal(t, []int64{6, 5, 3, 7, 4, 30}, ids)
	assert.Equal(t, "vid-3", entries[2].Attachment.VideoID)
	assert.Equal(t, h, entries[3].Attachment.ExternalCheckSum)
	assert.Equal(t, []int64{6, 7, 4, 30}, gw.order)

	var actions []models.Action
	for _, r := range report.Results {
		actions = append(actions, r.Action)
	}
	assert.Equal(t, []models.Action{
		models.ActionCreated, models.ActionKept, models.ActionKept,
		models.ActionCreated, models.ActionUpdated, models.ActionKept,
	}, actions)
}

func TestSynchronize_ChecksumFailureFailsFast(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{picture("A", "/p/a.png"), picture("Missing", "/p/missing.png")}
	_, err := svc.Synchronize(context.Background(), entries)
	require.ErrorIs(t, err, checksum.ErrRead)
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, gw.calls)
	assert.Empty(t, entries[0].Attachment.ExternalID)
}

func TestSynchronize_VideoUploadErrorAborts(t *testing.T) {
	gw := &fakeGateway{videoErr: &gateway.HandshakeError{
		State: gateway.StateUploadingBinary,
		Err:   &netx.VideoUploadError{URL: "https://videos.example", StatusCode: 500, Status: "500"},
	}}
	svc := NewAttachmentSyncService(gw, memOpener{"/v/tour.mp4": []byte("v"), "/p/a.png": jpgA})

	entries := []models.Entry{
		{Attachment: &models.Attachment{Kind: models.KindStreamingVideo, Title: "Tour"}, Path: "/v/tour.mp4"},
		picture("A", "/p/a.png"),
	}
	_, err := svc.Synchronize(context.Background(), entries)
	require.ErrorIs(t, err, netx.ErrVideoUpload)
	assert.Zero(t, entries[0].Attachment.ID)
	assert.Zero(t, gw.count("create_file"))
}

func TestSynchronize_InvalidEntries(t *testing.T) {
	svc := NewAttachmentSyncService(&fakeGateway{}, files())

	_, err := svc.Synchronize(context.Background(), []models.Entry{{}})
	require.ErrorIs(t, err, ErrInvalidEntry)

	_, err = svc.Synchronize(context.Background(), []models.Entry{{Attachment: &models.Attachment{Kind: "Audio"}}})
	require.ErrorIs(t, err, ErrInvalidEntry)
	require.ErrorIs(t, err, models.ErrUnknownKind)

	_, err = svc.Synchronize(context.Background(), []models.Entry{{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "x"}}})
	require.ErrorIs(t, err, ErrMissingPath)
}

func TestSynchronize_FileEntryWithOnlyIDIsRejectedBeforeWrites(t *testing.T) {
	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 7, Kind: models.KindPicture, Title: "Keep", ExternalCheckSum: "abc"}},
		order:  []int64{7},
		nextID: 7,
	}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{{Attachment: &models.Attachment{ID: 7, Kind: models.KindPicture, Title: "Keep"}}}
	_, err := svc.Synchronize(context.Background(), entries)
	require.ErrorIs(t, err, ErrMissingPath)

	assert.Empty(t, gw.calls)
	require.Len(t, gw.items, 1)
	assert.Equal(t, int64(7), gw.items[0].ID)
}

func TestSynchronize_DuplicateIdentityOrdersOnce(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewAttachmentSyncService(gw, files())

	entries := []models.Entry{
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "A", ExternalID: "Z"}, Path: "/p/a.png"},
		{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "A", ExternalID: "Z"}, Path: "/p/a.png"},
		picture("B", "/p/b.png"),
	}
	report, err := svc.Synchronize(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, entries[0].Attachment.ID, entries[1].Attachment.ID)
	assert.Equal(t, 2, gw.count("create_file"))
	assert.Zero(t, gw.count("set_order"))
	assert.Nil(t, report.Order)
	assert.Equal(t, []int64{1, 2}, gw.order)
}

func TestSynchronize_KindChangeRecreates(t *testing.T) {
	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 1, Kind: models.KindPDFDocument, Title: "Plan", ExternalID: "X", ExternalCheckSum: checksum.Bytes(jpgA)}},
		order:  []int64{1},
		nextID: 1,
	}
	svc := NewAttachmentSyncService(gw, files())

	entry := models.Entry{Attachment: &models.Attachment{Kind: models.KindPicture, Title: "Plan", ExternalID: "X"}, Path: "/p/a.png"}
	report, err := svc.Synchronize(context.Background(), []models.Entry{entry})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete 1", "create_file"}, gw.writes())
	assert.Equal(t, []int64{1}, report.Deleted)
	assert.Equal(t, int64(2), entry.Attachment.ID)
	assert.Equal(t, models.ActionCreated, report.Results[0].Action)
}

type fakeJournal struct {
	begun    []string
	actions  []models.Action
	finished error
	done     bool
	failOn   models.Action
}

func (j *fakeJournal) BeginRun(_ context.Context, runID, listingID string, entries int) error {
	j.begun = append(j.begun, fmt.Sprintf("%s/%s/%d", runID, listingID, entries))
	return nil
}

func (j *fakeJournal) RecordAction(_ context.Context, _ string, action models.Action, _ *models.Attachment) error {
	if action == j.failOn {
		return errors.New("disk full")
	}
	j.actions = append(j.actions, action)
	return nil
}

func (j *fakeJournal) FinishRun(_ context.Context, _ string, runErr error) error {
	j.done = true
	j.finished = runErr
	return nil
}

func TestSynchronize_JournalAndMetrics(t *testing.T) {
	old := newRunID
	newRunID = func() string { return "run-1" }
	t.Cleanup(func() { newRunID = old })

	gw := &fakeGateway{
		items:  []*models.Attachment{{ID: 1, Kind: models.KindPicture, Title: "Gone", ExternalID: "g", ExternalCheckSum: "x"}},
		nextID: 1,
	}
	j := &fakeJournal{}
	m := metrics.New(nil)
	svc := NewAttachmentSyncService(gw, files(), WithJournal(j, "77"), WithMetrics(m))

	report, err := svc.Synchronize(context.Background(), []models.Entry{picture("A", "/p/a.png"), picture("B", "/p/b.png")})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []string{"run-1/77/2"}, j.begun)
	assert.Equal(t, []models.Action{models.ActionDeleted, models.ActionCreated, models.ActionCreated}, j.actions)
	assert.True(t, j.done)
	assert.NoError(t, j.finished)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("deleted")))
}

func TestSynchronize_JournalFailureAbortsAndIsFinished(t *testing.T) {
	gw := &fakeGateway{}
	j := &fakeJournal{failOn: models.ActionCreated}
	svc := NewAttachmentSyncService(gw, files(), WithJournal(j, "77"))

	_, err := svc.Synchronize(context.Background(), []models.Entry{picture("A", "/p/a.png"), picture("B", "/p/b.png")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, gw.count("create_file"))
	assert.True(t, j.done)
	assert.Error(t, j.finished)
}
