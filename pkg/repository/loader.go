package repository

import (
	"io"
	"os"

	"cloud.google.com/go/civil"
	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// LoadedRecord is a record read from a file. PreviousID and PreviousType name
// the identity the record was indexed under before a rename.
type LoadedRecord struct {
	Record       *model.Record
	PreviousID   string
	PreviousType model.RecordType
}

type recordFile struct {
	Records []recordEntry `yaml:"records"`
}

type recordEntry struct {
	ID            string       `yaml:"id"`
	PreviousID    string       `yaml:"previous_id"`
	PreviousType  string       `yaml:"previous_type"`
	Type          string       `yaml:"type"`
	Title         string       `yaml:"title"`
	Summary       string       `yaml:"summary"`
	Tags          []string     `yaml:"tags"`
	Facts         []string     `yaml:"facts"`
	DetailSite    string       `yaml:"detail_site"`
	AdditionalURL []model.Link `yaml:"additional_url"`
	StartDate     string       `yaml:"start_date"`
	EndDate       string       `yaml:"end_date"`
	Priority      int          `yaml:"priority"`
}

// LoadRecordsFile reads a YAML records file
func LoadRecordsFile(path string) ([]*LoadedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open records file", goerr.V("path", path))
	}
	defer f.Close()

	loaded, err := LoadRecords(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load records file", goerr.V("path", path))
	}
	return loaded, nil
}

// LoadRecords decodes records from YAML. Dates are YYYY-MM-DD.
func LoadRecords(r io.Reader) ([]*LoadedRecord, error) {
	var file recordFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, goerr.Wrap(err, "failed to decode records yaml")
	}

	seen := make(map[string]bool, len(file.Records))
	out := make([]*LoadedRecord, 0, len(file.Records))
	for i, e := range file.Records {
		rec := &model.Record{
			ID:            e.ID,
			Type:          model.RecordType(e.Type),
			Title:         e.Title,
			Summary:       e.Summary,
			Tags:          e.Tags,
			Facts:         e.Facts,
			DetailSite:    e.DetailSite,
			AdditionalURL: e.AdditionalURL,
			Priority:      e.Priority,
		}

		var err error
		if rec.StartDate, err = parseYAMLDate(e.StartDate); err != nil {
			return nil, goerr.Wrap(err, "invalid start_date", goerr.V("index", i), goerr.V("id", e.ID))
		}
		if rec.EndDate, err = parseYAMLDate(e.EndDate); err != nil {
			return nil, goerr.Wrap(err, "invalid end_date", goerr.V("index", i), goerr.V("id", e.ID))
		}

		rec.Normalize()
		if err := rec.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid record", goerr.V("index", i))
		}
		if seen[rec.ID] {
			return nil, goerr.New("duplicate record id", goerr.V("id", rec.ID))
		}
		seen[rec.ID] = true

		out = append(out, &LoadedRecord{
			Record:       rec,
			PreviousID:   e.PreviousID,
			PreviousType: model.RecordType(e.PreviousType),
		})
	}
	return out, nil
}

func parseYAMLDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, goerr.Wrap(err, "date must be YYYY-MM-DD", goerr.V("value", s))
	}
	return &d, nil
}
