package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"fieldcrm/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) CompleteJSON(context.Context, string, string) (string, error) { return s.reply, s.err }

func (s *stubLLM) Chat(context.Context, string, []ChatMessage) (string, error) { return s.reply, s.err }

func (s *stubLLM) ModelName() string { return "stub-model" }

func TestClassifyUrgency(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I smell gas near the furnace", models.UrgencyEmergency},
		{"There is smoke coming from the dryer", models.UrgencyEmergency},
		{"Basement is flooding from the water heater", models.UrgencyEmergency},
		{"No heat since last night", models.UrgencyHigh},
		{"Dishwasher is leaking under the door", models.UrgencyHigh},
		{"Fridge makes a strange noise", models.UrgencyLow},
		{"Annual tune-up please", models.UrgencyLow},
		{"Would like a quote for a new range", models.UrgencyNormal},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyUrgency(tt.text))
		})
	}
}

func TestDetectMissingFieldsOrder(t *testing.T) {
	date := time.Now()
	missing := DetectMissingFields(TriageInput{
		Description:   "Washer will not drain",
		Phone:         "+15550101234",
		ApplianceType: "washer",
		PreferredDate: &date,
	})

	fields := make([]string, len(missing))
	for i, f := range missing {
		fields[i] = f.Field
	}
	assert.Equal(t, []string{"address", "brand", "model_number"}, fields)
	assert.Equal(t, "the service address", missing[0].Label)

	assert.Len(t, DetectMissingFields(TriageInput{}), 7)
}

func TestMatchSheetsRanksByOverlap(t *testing.T) {
	sheets := []models.ServiceSheet{
		{Model: gormModel(1), Title: "Whirlpool washer drain pump", ApplianceType: "washer", Brand: "whirlpool"},
		{Model: gormModel(2), Title: "Furnace ignitor replacement", ApplianceType: "furnace"},
		{Model: gormModel(3), Title: "Washer error codes", ApplianceType: "washer", Keywords: datatypes.JSONSlice[string]{"drain"}},
	}
	matches := MatchSheets(TriageInput{
		Description:   "washer won't drain",
		ApplianceType: "washer",
		Brand:         "Whirlpool",
	}, sheets)

	require.Len(t, matches, 2)
	assert.Equal(t, uint(1), matches[0].ID)
	assert.Equal(t, uint(3), matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestAnalyzeUsesRulesWithoutLLM(t *testing.T) {
	result, err := NewTriageAnalyzer(nil).Analyze(context.Background(), TriageInput{
		Description:   "Gas smell by the oven",
		ApplianceType: "oven",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, TriageSourceRules, result.Source)
	assert.Equal(t, models.UrgencyEmergency, result.Urgency)
	assert.Contains(t, result.Summary, "Oven request, emergency urgency")
}

func TestAnalyzeWithLLM(t *testing.T) {
	llm := &stubLLM{reply: `{"urgency":"high","missing_fields":[{"field":"brand","reason":"parts"}],"summary":"Dryer not heating","sheet_ids":[7]}`}
	sheets := []models.ServiceSheet{
		{Model: gormModel(7), Title: "Dryer heating element", ApplianceType: "dryer"},
		{Model: gormModel(8), Title: "Dryer belt", ApplianceType: "dryer"},
	}

	result, err := NewTriageAnalyzer(llm).Analyze(context.Background(), TriageInput{
		Description:   "dryer not heating",
		ApplianceType: "dryer",
	}, sheets)
	require.NoError(t, err)
	assert.Equal(t, TriageSourceLLM, result.Source)
	assert.Equal(t, "stub-model", result.Model)
	assert.Equal(t, models.UrgencyHigh, result.Urgency)
	require.Len(t, result.MissingFields, 1)
	assert.Equal(t, "the brand", result.MissingFields[0].Label)
	require.Len(t, result.MatchedSheets, 1)
	assert.Equal(t, uint(7), result.MatchedSheets[0].ID)
}

func TestAnalyzeRejectsBadModelOutput(t *testing.T) {
	ctx := context.Background()
	in := TriageInput{Description: "oven broken"}

	_, err := NewTriageAnalyzer(&stubLLM{err: errors.New("timeout")}).Analyze(ctx, in, nil)
	assert.Error(t, err)

	_, err = NewTriageAnalyzer(&stubLLM{reply: "not json"}).Analyze(ctx, in, nil)
	assert.Error(t, err)

	_, err = NewTriageAnalyzer(&stubLLM{reply: `{"urgency":"apocalyptic"}`}).Analyze(ctx, in, nil)
	assert.Error(t, err)
}

func TestTriageServiceRunPersistsAndEmits(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	contact := models.Contact{OrganizationID: org.ID, FirstName: "Ada", Phone: "+15550101234", Address: "1 Main St"}
	require.NoError(t, db.Create(&contact).Error)
	service := models.Service{OrganizationID: org.ID, ContactID: contact.ID, Description: "No hot water at all"}
	require.NoError(t, db.Create(&service).Error)

	events := &recordingEmitter{}
	triage := NewTriageService(db, NewTriageAnalyzer(nil), events, testLogger())

	result, err := triage.Run(context.Background(), org.ID, service.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UrgencyHigh, result.Urgency)

	var stored models.Service
	require.NoError(t, db.First(&stored, service.ID).Error)
	assert.Equal(t, models.UrgencyHigh, stored.Urgency)

	latest, err := triage.Latest(context.Background(), service.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, result.ID, latest.ID)
	assert.Equal(t, []string{EventServiceTriaged}, events.types())

	other := seedOrganization(t, db, "Other")
	_, err = triage.Run(context.Background(), other.ID, service.ID)
	assert.Error(t, err)
}

func TestTriageServiceRunRecordsModelName(t *testing.T) {
	db := newTestDB(t)
	org := seedOrganization(t, db, "Acme")
	contact := models.Contact{OrganizationID: org.ID, FirstName: "Ada", Phone: "+15550101234"}
	require.NoError(t, db.Create(&contact).Error)
	service := models.Service{OrganizationID: org.ID, ContactID: contact.ID, Description: "dryer not heating"}
	require.NoError(t, db.Create(&service).Error)

	llm := &stubLLM{reply: `{"urgency":"normal","summary":"Dryer not heating"}`}
	triage := NewTriageService(db, NewTriageAnalyzer(llm), nil, testLogger())
	_, err := triage.Run(context.Background(), org.ID, service.ID)
	require.NoError(t, err)

	latest, err := triage.Latest(context.Background(), service.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, TriageSourceLLM, latest.Source)
	assert.Equal(t, "stub-model", latest.ModelName)
}

func TestRulesSummaryCapitalizesFirstRune(t *testing.T) {
	result, err := NewTriageAnalyzer(nil).Analyze(context.Background(), TriageInput{
		Description:   "noisy",
		ApplianceType: "évier",
	}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Summary, "Évier request"), result.Summary)
}

func TestNamedFields(t *testing.T) {
	fields := NamedFields([]string{"brand", " ", "serial_number"})
	require.Len(t, fields, 2)
	assert.Equal(t, "the brand", fields[0].Label)
	assert.Equal(t, "serial number", fields[1].Label)
}
