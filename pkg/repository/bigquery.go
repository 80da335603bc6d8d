package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// BigQuery reads records from a warehouse table maintained outside the agent.
// It is read-only. Expected schema:
//
//	id STRING, type STRING, title STRING, summary STRING,
//	tags ARRAY<STRING>, facts ARRAY<STRING>, detail_site STRING,
//	additional_url ARRAY<STRUCT<label STRING, url STRING>>,
//	start_date DATE, end_date DATE, priority INT64
type BigQuery struct {
	client *bigquery.Client
	table  string
}

func NewBigQuery(ctx context.Context, projectID, datasetID, tableID string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", projectID))
	}

	return &BigQuery{
		client: client,
		table:  fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, tableID),
	}, nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}

type bqLink struct {
	Label string `bigquery:"label"`
	URL   string `bigquery:"url"`
}

type bqRecord struct {
	ID            string              `bigquery:"id"`
	Type          string              `bigquery:"type"`
	Title         string              `bigquery:"title"`
	Summary       bigquery.NullString `bigquery:"summary"`
	Tags          []string            `bigquery:"tags"`
	Facts         []string            `bigquery:"facts"`
	DetailSite    bigquery.NullString `bigquery:"detail_site"`
	AdditionalURL []bqLink            `bigquery:"additional_url"`
	StartDate     bigquery.NullDate   `bigquery:"start_date"`
	EndDate       bigquery.NullDate   `bigquery:"end_date"`
	Priority      bigquery.NullInt64  `bigquery:"priority"`
}

func (row *bqRecord) toRecord() *model.Record {
	r := &model.Record{
		ID:         row.ID,
		Type:       model.RecordType(row.Type),
		Title:      row.Title,
		Summary:    row.Summary.StringVal,
		Tags:       row.Tags,
		Facts:      row.Facts,
		DetailSite: row.DetailSite.StringVal,
		Priority:   int(row.Priority.Int64),
	}
	if row.StartDate.Valid {
		d := row.StartDate.Date
		r.StartDate = &d
	}
	if row.EndDate.Valid {
		d := row.EndDate.Date
		r.EndDate = &d
	}
	for _, l := range row.AdditionalURL {
		r.AdditionalURL = append(r.AdditionalURL, model.Link{Label: l.Label, URL: l.URL})
	}
	r.Normalize()
	return r
}

const bqColumns = "id, type, title, summary, tags, facts, detail_site, additional_url, start_date, end_date, priority"

func nullDate(d *civil.Date) bigquery.NullDate {
	if d == nil {
		return bigquery.NullDate{}
	}
	return bigquery.NullDate{Date: *d, Valid: true}
}

// wrapBQErr marks server-side and quota failures as store unavailability
func wrapBQErr(err error, msg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests) {
		return goerr.Wrap(model.ErrStoreUnavailable, msg, goerr.V("cause", err.Error()), goerr.V("code", apiErr.Code))
	}
	return goerr.Wrap(err, msg)
}

func (b *BigQuery) read(ctx context.Context, sql string, params []bigquery.QueryParameter) ([]*model.Record, error) {
	q := b.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, wrapBQErr(err, "failed to run records query")
	}

	var records []*model.Record
	for {
		var row bqRecord
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapBQErr(err, "failed to read records row")
		}
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (b *BigQuery) QueryByDate(ctx context.Context, q *DateQuery) ([]*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bigquery.QueryByDate")
	defer span.End()

	sql := `SELECT ` + bqColumns + ` FROM ` + b.table + `
WHERE start_date IS NOT NULL
  AND (@record_type = '' OR type = @record_type)
  AND (@start_after IS NULL OR start_date >= @start_after)
  AND (@start_before IS NULL OR start_date <= @start_before)
  AND (@end_after IS NULL OR end_date >= @end_after)
  AND (@end_before IS NULL OR end_date <= @end_before)`

	records, err := b.read(ctx, sql, []bigquery.QueryParameter{
		{Name: "record_type", Value: string(q.RecordType)},
		{Name: "start_after", Value: nullDate(q.StartAfter)},
		{Name: "start_before", Value: nullDate(q.StartBefore)},
		{Name: "end_after", Value: nullDate(q.EndAfter)},
		{Name: "end_before", Value: nullDate(q.EndBefore)},
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := q.Apply(records)
	span.SetAttributes(attribute.Int("records.count", len(out)))
	return out, nil
}

func (b *BigQuery) filterSQL(q *FilterQuery) (string, []bigquery.QueryParameter) {
	var recordType string
	tags := []string{}
	if q != nil {
		recordType = string(q.RecordType)
		tags = LowerTags(q.Tags)
	}

	sql := `SELECT ` + bqColumns + ` FROM ` + b.table + `
WHERE (@record_type = '' OR type = @record_type)
  AND (ARRAY_LENGTH(@tags) = 0 OR EXISTS (SELECT 1 FROM UNNEST(tags) AS t WHERE LOWER(t) IN UNNEST(@tags)))`

	return sql, []bigquery.QueryParameter{
		{Name: "record_type", Value: recordType},
		{Name: "tags", Value: tags},
	}
}

func (b *BigQuery) QueryByFilter(ctx context.Context, q *FilterQuery) ([]*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bigquery.QueryByFilter")
	defer span.End()

	sql, params := b.filterSQL(q)
	records, err := b.read(ctx, sql, params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return q.Apply(records), nil
}

func (b *BigQuery) GetByID(ctx context.Context, id string) (*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bigquery.GetByID")
	defer span.End()

	sql := `SELECT ` + bqColumns + ` FROM ` + b.table + ` WHERE id = @id LIMIT 1`
	records, err := b.read(ctx, sql, []bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(records) == 0 {
		return nil, goerr.Wrap(model.ErrNotFound, "no such record", goerr.V("id", id))
	}
	return records[0], nil
}

func (b *BigQuery) Aggregate(ctx context.Context, stat StatType, q *FilterQuery, topN int) (*Aggregate, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bigquery.Aggregate")
	defer span.End()

	var filter FilterQuery
	if q != nil {
		filter = *q
	}
	filter.Limit = 0

	sql, params := b.filterSQL(&filter)
	records, err := b.read(ctx, sql, params)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return Summarize(filter.Apply(records), stat, topN), nil
}
