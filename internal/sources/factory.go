package sources

import (
	"fic-gradebot/internal/archive"
	"fic-gradebot/internal/components/chrono"
	"fic-gradebot/internal/components/telemetry"
	"fic-gradebot/internal/scrapers/fic"
	"fic-gradebot/internal/scrapers/moodle"
)

// Factory builds the portal sessions of one user.
type Factory struct {
	FicBaseUrl    string
	MoodleBaseUrl string
	SsoBaseUrl    string
	// EmptyGrade replaces blank grade cells.
	EmptyGrade  string
	ActiveTerms int
	Time        chrono.TimeAPI
	Tel         telemetry.API
}

// For returns fresh sources with their own cookie jars, the caller closes
// them.
func (f Factory) For(userID int64) (*Fic, *Moodle, error) {
	ficClient, err := fic.NewClient(f.FicBaseUrl, f.Tel)
	if err != nil {
		return nil, nil, err
	}
	moodleClient, err := moodle.NewClient(f.MoodleBaseUrl, f.SsoBaseUrl, f.Tel)
	if err != nil {
		return nil, nil, err
	}

	policy := archive.Policy{Window: f.ActiveTerms, Clock: f.Time}
	moodleSource, err := NewMoodle(moodleClient, moodleClient.OverviewUrl(), policy, f.Time, f.Tel)
	if err != nil {
		return nil, nil, err
	}
	return NewFic(ficClient, ficClient.ResultsUrl(), f.EmptyGrade, f.Tel), moodleSource, nil
}
