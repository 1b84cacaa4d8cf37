// Package bigquery streams sales facts into the analytics dataset.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Row is a struct row that carries its own insert id. BigQuery uses the id
// to drop duplicates of a streamed row for a short window.
type Row interface {
	InsertID() string
}

type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	tables  []string
}

// NewClient opens the dataset and fails fast when it or the sales table is
// missing; tables are provisioned by infrastructure, never here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.SalesEventsTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		client:  bqClient,
		dataset: bqClient.Dataset(datasetID),
		tables:  []string{table},
	}
	if err := c.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery client initialized")
	}
	return c, nil
}

// Ping reads the metadata of every configured table.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	for _, name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("table %s.%s does not exist", c.dataset.DatasetID, name)
			}
			return fmt.Errorf("checking table %s.%s: %w", c.dataset.DatasetID, name, err)
		}
	}
	return nil
}

// InsertRows streams rows into table. Rows implementing Row are sent with
// their insert id.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}

	err := c.dataset.Table(table).Inserter().Put(ctx, savers(rows))
	return describePutError(table, err)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func savers(rows []any) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		if r, ok := row.(Row); ok && r.InsertID() != "" {
			out = append(out, &bigquery.StructSaver{Struct: row, InsertID: r.InsertID()})
			continue
		}
		out = append(out, row)
	}
	return out
}

// describePutError keeps the first row error readable in logs; the full
// PutMultiError can carry one entry per rejected row.
func describePutError(table string, err error) error {
	if err == nil {
		return nil
	}
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		first := multi[0]
		return fmt.Errorf("insert into %s: %d row(s) rejected, row %d: %v: %w", table, len(multi), first.RowIndex, first.Errors, err)
	}
	return fmt.Errorf("insert into %s: %w", table, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
