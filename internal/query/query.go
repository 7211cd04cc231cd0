// Package query answers filtered, paginated reads and aggregate statistics
// over the current working set.
package query

import (
	"time"

	"github.com/atikulmunna/eveflow/internal/model"
)

const DefaultLimit = 50

// Reader supplies the records to query. All returns a private copy,
// newest first. Cap bounds the page size.
type Reader interface {
	All() []model.Record
	Get(id string) (model.Record, bool)
	Cap() int
}

// Result is one page of matching records.
type Result struct {
	Logs  []model.Record `json:"logs"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// Service runs queries against a Reader.
type Service struct {
	src Reader
}

// New creates a Service over src.
func New(src Reader) *Service {
	return &Service{src: src}
}

// Query returns page (1-indexed) of the records matching f, limit per page.
// Total counts every match, not just the returned page.
func (s *Service) Query(f Filters, page, limit int) Result {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if c := s.src.Cap(); c > 0 && limit > c {
		limit = c
	}

	all := s.src.All()
	matched := all[:0]
	for _, rec := range all {
		if f.Match(rec) {
			matched = append(matched, rec)
		}
	}

	res := Result{Logs: []model.Record{}, Total: len(matched), Page: page, Limit: limit}
	// Compare page counts first; (page-1)*limit can overflow.
	if page-1 >= (len(matched)+limit-1)/limit {
		return res
	}
	start := (page - 1) * limit
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	res.Logs = matched[start:end]
	return res
}

// Get returns a single record by id.
func (s *Service) Get(id string) (model.Record, bool) {
	return s.src.Get(id)
}

var severityColors = map[model.Severity]string{
	model.SeverityLow:      "#38A169",
	model.SeverityMedium:   "#ECC94B",
	model.SeverityHigh:     "#DD6B20",
	model.SeverityCritical: "#E53E3E",
}

const (
	histogramBuckets = 24
	bucketLayout     = "2006-01-02T15:04:05.000Z"
)

// Stats aggregates the whole working set; it does not take filters.
// The histogram has 24 hourly buckets, the last one starting at now.
func (s *Service) Stats(now time.Time) model.Stats {
	all := s.src.All()

	st := model.Stats{
		TotalLogs:       len(all),
		SeverityStats:   make([]model.SeverityStat, len(model.Severities)),
		ProtocolStats:   []model.ProtocolStat{},
		StatusCodeStats: []model.StatusCodeStat{},
		TimeSeriesStats: make([]model.TimeSeriesStat, histogramBuckets),
	}

	sevIdx := make(map[model.Severity]int, len(model.Severities))
	for i, sev := range model.Severities {
		st.SeverityStats[i] = model.SeverityStat{Name: sev, Color: severityColors[sev]}
		sevIdx[sev] = i
	}

	first := now.Add(-(histogramBuckets - 1) * time.Hour)
	for i := range st.TimeSeriesStats {
		st.TimeSeriesStats[i].Timestamp = first.Add(time.Duration(i) * time.Hour).UTC().Format(bucketLayout)
	}

	protoIdx := make(map[string]int)
	codeIdx := make(map[int]int)
	for _, rec := range all {
		if i, ok := sevIdx[rec.Severity]; ok {
			st.SeverityStats[i].Value++
		}

		if i, ok := protoIdx[rec.Protocol]; ok {
			st.ProtocolStats[i].Value++
		} else {
			protoIdx[rec.Protocol] = len(st.ProtocolStats)
			st.ProtocolStats = append(st.ProtocolStats, model.ProtocolStat{Name: rec.Protocol, Value: 1})
		}

		if rec.StatusCode != 0 {
			if i, ok := codeIdx[rec.StatusCode]; ok {
				st.StatusCodeStats[i].Count++
			} else {
				codeIdx[rec.StatusCode] = len(st.StatusCodeStats)
				st.StatusCodeStats = append(st.StatusCodeStats, model.StatusCodeStat{Code: rec.StatusCode, Count: 1})
			}
		}

		if ts, ok := ParseTime(rec.Timestamp); ok && !ts.Before(first) {
			if b := int(ts.Sub(first) / time.Hour); b < histogramBuckets {
				st.TimeSeriesStats[b].Count++
			}
		}
	}

	return st
}
