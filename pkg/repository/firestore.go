package repository

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/dossier/pkg/adapter"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultRecordCollection = "records"
	defaultVectorCollection = "record_vectors"
	distanceField           = "vector_distance"

	// array-contains-any accepts at most this many values
	maxArrayContainsAny = 30
)

// Firestore stores records in one collection and their embeddings in another.
// Cheap predicates (type, start date range, tag membership) are pushed down;
// the remaining predicate and the ordering are applied by DateQuery.Apply and
// FilterQuery.Apply so every backend shares one semantics.
type Firestore struct {
	client           *firestore.Client
	embedder         Embedder
	recordCollection string
	vectorCollection string
}

type FirestoreOption func(*Firestore)

// WithCollections overrides the record and vector collection names
func WithCollections(records, vectors string) FirestoreOption {
	return func(f *Firestore) {
		f.recordCollection = records
		f.vectorCollection = vectors
	}
}

// WithEmbedder enables Search
func WithEmbedder(e Embedder) FirestoreOption {
	return func(f *Firestore) {
		f.embedder = e
	}
}

func NewFirestore(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	f := &Firestore{
		client:           client,
		recordCollection: defaultRecordCollection,
		vectorCollection: defaultVectorCollection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

type linkDoc struct {
	Label string `firestore:"label"`
	URL   string `firestore:"url"`
}

type recordDoc struct {
	ID            string    `firestore:"id"`
	Type          string    `firestore:"type"`
	Title         string    `firestore:"title"`
	Summary       string    `firestore:"summary"`
	Tags          []string  `firestore:"tags"`
	TagsLower     []string  `firestore:"tags_lower"`
	Facts         []string  `firestore:"facts"`
	DetailSite    string    `firestore:"detail_site"`
	AdditionalURL []linkDoc `firestore:"additional_url"`
	StartDate     string    `firestore:"start_date"`
	EndDate       string    `firestore:"end_date"`
	Priority      int       `firestore:"priority"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

type vectorDoc struct {
	RecordID  string             `firestore:"record_id"`
	Type      string             `firestore:"type"`
	Title     string             `firestore:"title"`
	Tags      []string           `firestore:"tags"`
	Priority  int                `firestore:"priority"`
	StartDate string             `firestore:"start_date"`
	EndDate   string             `firestore:"end_date"`
	Text      string             `firestore:"text"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

func formatDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func parseDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid stored date", goerr.V("value", s))
	}
	return &d, nil
}

func toRecordDoc(r *model.Record) *recordDoc {
	doc := &recordDoc{
		ID:         r.ID,
		Type:       string(r.Type),
		Title:      r.Title,
		Summary:    r.Summary,
		Tags:       r.Tags,
		TagsLower:  LowerTags(r.Tags),
		Facts:      r.Facts,
		DetailSite: r.DetailSite,
		StartDate:  formatDate(r.StartDate),
		EndDate:    formatDate(r.EndDate),
		Priority:   r.Priority,
		UpdatedAt:  time.Now(),
	}
	for _, l := range r.AdditionalURL {
		doc.AdditionalURL = append(doc.AdditionalURL, linkDoc{Label: l.Label, URL: l.URL})
	}
	return doc
}

func (d *recordDoc) toRecord() (*model.Record, error) {
	start, err := parseDate(d.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(d.EndDate)
	if err != nil {
		return nil, err
	}

	r := &model.Record{
		ID:         d.ID,
		Type:       model.RecordType(d.Type),
		Title:      d.Title,
		Summary:    d.Summary,
		Tags:       d.Tags,
		Facts:      d.Facts,
		DetailSite: d.DetailSite,
		StartDate:  start,
		EndDate:    end,
		Priority:   d.Priority,
	}
	for _, l := range d.AdditionalURL {
		r.AdditionalURL = append(r.AdditionalURL, model.Link{Label: l.Label, URL: l.URL})
	}
	r.Normalize()
	return r, nil
}

// wrapErr marks transient gRPC failures as store unavailability
func wrapErr(err error, msg string, opts ...goerr.Option) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		opts = append(opts, goerr.V("cause", err.Error()))
		return goerr.Wrap(model.ErrStoreUnavailable, msg, opts...)
	}
	return goerr.Wrap(err, msg, opts...)
}

func (f *Firestore) fetch(ctx context.Context, q firestore.Query) ([]*model.Record, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr(err, "failed to query records", goerr.V("collection", f.recordCollection))
	}

	records := make([]*model.Record, 0, len(docs))
	for _, snap := range docs {
		var doc recordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode record", goerr.V("doc", snap.Ref.ID))
		}
		r, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (f *Firestore) QueryByDate(ctx context.Context, q *DateQuery) ([]*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.QueryByDate")
	defer span.End()

	query := f.client.Collection(f.recordCollection).Query
	if q.RecordType != "" {
		query = query.Where("type", "==", string(q.RecordType))
	}
	// dates are stored as YYYY-MM-DD so string order is chronological, and
	// records without a start date ("") fall outside any lower bound
	lower := "0000-01-01"
	if q.StartAfter != nil {
		lower = q.StartAfter.String()
	}
	query = query.Where("start_date", ">=", lower)
	if q.StartBefore != nil {
		query = query.Where("start_date", "<=", q.StartBefore.String())
	}

	records, err := f.fetch(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := q.Apply(records)
	span.SetAttributes(attribute.Int("records.count", len(out)))
	return out, nil
}

func (f *Firestore) filterQuery(q *FilterQuery) firestore.Query {
	query := f.client.Collection(f.recordCollection).Query
	if q == nil {
		return query
	}
	if q.RecordType != "" {
		query = query.Where("type", "==", string(q.RecordType))
	}
	tags := LowerTags(q.Tags)
	switch {
	case len(tags) == 0:
	case q.MatchAllTags:
		// Firestore allows one array-contains per query; the rest is checked in Go
		query = query.Where("tags_lower", "array-contains", tags[0])
	case len(tags) <= maxArrayContainsAny:
		query = query.Where("tags_lower", "array-contains-any", tags)
	}
	return query
}

func (f *Firestore) QueryByFilter(ctx context.Context, q *FilterQuery) ([]*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.QueryByFilter")
	defer span.End()

	records, err := f.fetch(ctx, f.filterQuery(q))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return q.Apply(records), nil
}

func (f *Firestore) GetByID(ctx context.Context, id string) (*model.Record, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.GetByID")
	defer span.End()

	snap, err := f.client.Collection(f.recordCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, goerr.Wrap(model.ErrNotFound, "no such record", goerr.V("id", id))
	}
	if err != nil {
		span.RecordError(err)
		return nil, wrapErr(err, "failed to get record", goerr.V("id", id))
	}

	var doc recordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode record", goerr.V("id", id))
	}
	return doc.toRecord()
}

func (f *Firestore) Aggregate(ctx context.Context, stat StatType, q *FilterQuery, topN int) (*Aggregate, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.Aggregate")
	defer span.End()

	var filter FilterQuery
	if q != nil {
		filter = *q
	}
	filter.Limit = 0

	records, err := f.fetch(ctx, f.filterQuery(&filter))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return Summarize(filter.Apply(records), stat, topN), nil
}

func (f *Firestore) PutRecord(ctx context.Context, record *model.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if _, err := f.client.Collection(f.recordCollection).Doc(record.ID).Set(ctx, toRecordDoc(record)); err != nil {
		return wrapErr(err, "failed to put record", goerr.V("id", record.ID))
	}
	return nil
}

func (f *Firestore) DeleteRecord(ctx context.Context, id string) error {
	if _, err := f.client.Collection(f.recordCollection).Doc(id).Delete(ctx); err != nil {
		return wrapErr(err, "failed to delete record", goerr.V("id", id))
	}
	return nil
}

func (f *Firestore) UpsertEntry(ctx context.Context, entry *IndexEntry) error {
	doc := &vectorDoc{
		RecordID:  entry.Metadata.RecordID,
		Type:      string(entry.Metadata.Type),
		Title:     entry.Metadata.Title,
		Tags:      entry.Metadata.Tags,
		Priority:  entry.Metadata.Priority,
		StartDate: formatDate(entry.Metadata.StartDate),
		EndDate:   formatDate(entry.Metadata.EndDate),
		Text:      entry.Text,
		Embedding: firestore.Vector32(entry.Vector),
		UpdatedAt: time.Now(),
	}
	if _, err := f.client.Collection(f.vectorCollection).Doc(entry.ID).Set(ctx, doc); err != nil {
		return wrapErr(err, "failed to upsert index entry", goerr.V("id", entry.ID))
	}
	return nil
}

func (f *Firestore) DeleteEntry(ctx context.Context, indexID string) error {
	if _, err := f.client.Collection(f.vectorCollection).Doc(indexID).Delete(ctx); err != nil {
		return wrapErr(err, "failed to delete index entry", goerr.V("id", indexID))
	}
	return nil
}

// Search runs a cosine FindNearest query. Score is 1 - cosine distance.
func (f *Firestore) Search(ctx context.Context, query string, domain model.RecordType, topK int) ([]*SearchHit, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "firestore.Search")
	defer span.End()

	if f.embedder == nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "no embedder configured for firestore index")
	}

	vec, err := f.embedder.Embedding(ctx, query, adapter.EmbeddingTaskQuery)
	if err != nil {
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to embed query", goerr.V("cause", err.Error()))
	}

	q := f.client.Collection(f.vectorCollection).Query
	if domain != "" {
		q = q.Where("type", "==", string(domain))
	}
	vq := q.FindNearest("embedding", firestore.Vector32(vec), topK, firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})

	docs, err := vq.Documents(ctx).GetAll()
	if err != nil {
		span.RecordError(err)
		return nil, wrapErr(err, "failed to search vectors", goerr.V("collection", f.vectorCollection))
	}

	hits := make([]*SearchHit, 0, len(docs))
	for _, snap := range docs {
		var doc vectorDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode index entry", goerr.V("doc", snap.Ref.ID))
		}
		start, err := parseDate(doc.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := parseDate(doc.EndDate)
		if err != nil {
			return nil, err
		}

		distance, _ := snap.Data()[distanceField].(float64)
		hits = append(hits, &SearchHit{
			ID:    snap.Ref.ID,
			Score: 1 - distance,
			Metadata: EntryMetadata{
				RecordID:  doc.RecordID,
				Type:      model.RecordType(doc.Type),
				Title:     doc.Title,
				Tags:      doc.Tags,
				Priority:  doc.Priority,
				StartDate: start,
				EndDate:   end,
			},
		})
	}

	SortHits(hits)
	span.SetAttributes(attribute.Int("hits.count", len(hits)))
	return limit(hits, topK), nil
}
