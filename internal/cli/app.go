package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/estatesync/internal/config"
	"github.com/dmitrijs2005/estatesync/internal/gateway"
	"github.com/dmitrijs2005/estatesync/internal/journal"
	"github.com/dmitrijs2005/estatesync/internal/logging"
	"github.com/dmitrijs2005/estatesync/internal/metrics"
	"github.com/dmitrijs2005/estatesync/internal/models"
	"github.com/dmitrijs2005/estatesync/internal/netx"
	"github.com/dmitrijs2005/estatesync/internal/restapi"
	"github.com/dmitrijs2005/estatesync/internal/services"
	"github.com/dmitrijs2005/estatesync/internal/source"
)

var ErrJournalDisabled = errors.New("journal disabled: no journal_dsn configured")

// App wires the REST client, content sources, journal and metrics for one
// command invocation.
type App struct {
	config  *config.Config
	out     io.Writer
	logger  logging.Logger
	api     gateway.Doer
	videos  gateway.VideoUploader
	opener  source.Opener
	journal *journal.Repository
	metrics *metrics.Metrics

	metricsSrv  *http.Server
	metricsAddr string
}

// NewApp builds the stack described by c. Reports go to out; logs and
// passphrase prompts go to errOut.
func NewApp(ctx context.Context, c *config.Config, out, errOut io.Writer) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, errOut)

	secret, err := tokenSecret(c, errOut)
	if err != nil {
		return nil, err
	}
	httpClient := restapi.NewOAuthHTTPClient(ctx, restapi.Credentials{
		ConsumerKey:       c.ConsumerKey,
		ConsumerSecret:    c.ConsumerSecret,
		AccessToken:       c.AccessToken,
		AccessTokenSecret: secret,
	}, c.RequestTimeout)

	api, err := restapi.NewClient(c.BaseURL, httpClient, logger)
	if err != nil {
		return nil, err
	}

	mux := source.NewMux(nil)
	if c.S3Region != "" || c.S3Endpoint != "" {
		s3, err := source.NewS3OpenerFromConfig(ctx, source.S3Config{
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		mux.S3 = s3
	}

	app := &App{
		config:  c,
		out:     out,
		logger:  logger,
		api:     api,
		videos:  netx.NewVideoHost(&http.Client{Timeout: c.RequestTimeout}),
		opener:  mux,
		metrics: metrics.New(nil),
	}

	if c.JournalDSN != "" {
		j, err := journal.Open(ctx, c.JournalDriver, c.JournalDSN)
		if err != nil {
			return nil, err
		}
		app.journal = j
	}

	if c.MetricsAddr != "" {
		if err := app.serveMetrics(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) serveMetrics(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.metricsAddr = ln.Addr().String()
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "metrics server stopped", "error", err)
		}
	}()
	a.logger.Info(ctx, "serving metrics", "addr", a.metricsAddr)
	return nil
}

// Close stops the metrics listener and closes the journal.
func (a *App) Close() error {
	var errs []error
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errs = append(errs, a.metricsSrv.Shutdown(ctx))
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	return errors.Join(errs...)
}

// Sync synchronizes the attachments of listingID to entries.
func (a *App) Sync(ctx context.Context, listingID string, entries []models.Entry) (*models.Report, error) {
	gw := gateway.New(a.api, a.videos, listingID,
		gateway.WithUser(a.config.User),
		gateway.WithLogger(a.logger.With("listing", listingID)),
		gateway.WithMetrics(a.metrics),
	)

	opts := []services.Option{
		services.WithLogger(a.logger.With("listing", listingID)),
		services.WithMetrics(a.metrics),
	}
	if a.journal != nil {
		opts = append(opts, services.WithJournal(a.journal, listingID))
	}
	return services.NewAttachmentSyncService(gw, a.opener, opts...).Synchronize(ctx, entries)
}

// History prints up to limit recent runs of listingID.
func (a *App) History(ctx context.Context, listingID string, limit int) error {
	if a.journal == nil {
		return ErrJournalDisabled
	}
	runs, err := a.journal.RecentRuns(ctx, listingID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tENTRIES\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Status, r.Entries, r.Error)
	}
	return tw.Flush()
}

// PrintReport writes a human readable summary of r.
func PrintReport(w io.Writer, r *models.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\n", r.RunID)
	fmt.Fprintln(tw, "ACTION\tID\tKIND\tTITLE")
	for _, res := range r.Results {
		a := res.Entry.Attachment
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", res.Action, a.ID, a.Kind, a.Title)
	}
	if len(r.Deleted) > 0 {
		fmt.Fprintf(tw, "deleted: %v\n", r.Deleted)
	}
	if r.Order != nil {
		fmt.Fprintf(tw, "order: %v\n", r.Order)
	}
	return tw.Flush()
}
