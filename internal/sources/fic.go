package sources

import (
	"context"

	"fic-gradebot/internal/changes"
	"fic-gradebot/internal/components/assert"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/fetch"
	"fic-gradebot/internal/notify"
	"fic-gradebot/internal/scrapers/fic"
	"fic-gradebot/internal/snapshot"
)

// Fic watches the final grades table.
type Fic struct {
	fetcher    fetch.Fetcher
	resultsUrl string
	emptyGrade string
	tel        telemetry.API
}

func NewFic(fetcher fetch.Fetcher, resultsUrl, emptyGrade string, tel telemetry.API) *Fic {
	assert.NotNil(fetcher, "fetcher")
	assert.NotEmptyStr(resultsUrl, "resultsUrl")
	assert.NotNil(tel, "tel")

	return &Fic{
		fetcher:    fetcher,
		resultsUrl: resultsUrl,
		emptyGrade: emptyGrade,
		tel:        telemetry.NewScopedAPI("fic_source", tel),
	}
}

func (s *Fic) Capture(ctx context.Context, creds fetch.Credentials) (Capture, error) {
	html, err := s.fetcher.Fetch(ctx, creds, s.resultsUrl)
	if err != nil {
		return Capture{}, err
	}
	grades := fic.ParseResults(html, s.emptyGrade)
	s.tel.ReportDebug("captured", len(grades))
	return newCapture(grades)
}

func (s *Fic) Report(baseline, current string) (Report, error) {
	prev, err := snapshot.ParseFlat(baseline)
	if err != nil {
		return Report{}, err
	}
	next, err := snapshot.ParseFlat(current)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Baseline: Capture{Canonical: current, Hash: snapshot.Hash(current)},
		Message:  notify.FicGrades(changes.DiffFlat(prev, next)),
	}, nil
}

func (s *Fic) Close() error {
	return s.fetcher.Close()
}
