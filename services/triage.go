package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Triage sources
const (
	TriageSourceRules = "rules"
	TriageSourceLLM   = "llm"
)

const maxSheetMatches = 5

// TriageInput is the free text of a service request plus what is already
// known about the customer and unit.
type TriageInput struct {
	Description   string     `json:"description"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address"`
	ApplianceType string     `json:"appliance_type"`
	Brand         string     `json:"brand"`
	ModelNumber   string     `json:"model_number"`
	PreferredDate *time.Time `json:"preferred_date,omitempty"`
}

// TriageResult is the analyzer output
type TriageResult struct {
	Urgency       string                `json:"urgency"`
	MissingFields []models.MissingField `json:"missing_fields"`
	MatchedSheets []models.SheetMatch   `json:"matched_sheets"`
	Summary       string                `json:"summary"`
	Source        string                `json:"source"`
	Model         string                `json:"model,omitempty"`
}

var urgencyRules = []struct {
	level   string
	pattern *regexp.Regexp
}{
	{models.UrgencyEmergency, regexp.MustCompile(`\b(gas (smell|leak)|smells? (of |like )?gas|smoke|smoking|fire|flames?|spark(s|ing)?|burning|flood(ed|ing)?|major leak|carbon monoxide|co alarm)\b`)},
	{models.UrgencyHigh, regexp.MustCompile(`\b(no heat|not heating|no cooling|not cooling|no hot water|leak(s|ing)?|not working|stopped working|won'?t (start|turn on)|broken)\b`)},
	{models.UrgencyLow, regexp.MustCompile(`\b(noise|noisy|slow|maintenance|tune[- ]?up|inspection|annual|cosmetic)\b`)},
}

// ClassifyUrgency applies the keyword rules, most severe level first.
func ClassifyUrgency(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range urgencyRules {
		if rule.pattern.MatchString(lower) {
			return rule.level
		}
	}
	return models.UrgencyNormal
}

type requiredField struct {
	field   string
	label   string
	reason  string
	missing func(TriageInput) bool
}

var requiredFields = []requiredField{
	{"phone", "a contact phone number", "needed to confirm the appointment",
		func(in TriageInput) bool { return strings.TrimSpace(in.Phone) == "" }},
	{"address", "the service address", "needed to dispatch a technician",
		func(in TriageInput) bool { return strings.TrimSpace(in.Address) == "" }},
	{"appliance_type", "the appliance type", "needed to send the right technician",
		func(in TriageInput) bool { return strings.TrimSpace(in.ApplianceType) == "" }},
	{"brand", "the brand", "needed to bring compatible parts",
		func(in TriageInput) bool { return strings.TrimSpace(in.Brand) == "" }},
	{"model_number", "the model number", "needed to look up parts and service sheets",
		func(in TriageInput) bool { return strings.TrimSpace(in.ModelNumber) == "" }},
	{"description", "a description of the problem", "too short to diagnose",
		func(in TriageInput) bool { return len(strings.TrimSpace(in.Description)) < 10 }},
	{"preferred_date", "a preferred date", "needed to schedule the visit",
		func(in TriageInput) bool { return in.PreferredDate == nil }},
}

// DetectMissingFields lists the required fields the request lacks, in a fixed order.
func DetectMissingFields(in TriageInput) []models.MissingField {
	missing := []models.MissingField{}
	for _, f := range requiredFields {
		if f.missing(in) {
			missing = append(missing, models.MissingField{Field: f.field, Label: f.label, Reason: f.reason})
		}
	}
	return missing
}

func fieldLabel(field string) string {
	for _, f := range requiredFields {
		if f.field == field {
			return f.label
		}
	}
	return strings.ReplaceAll(field, "_", " ")
}

// NamedFields turns caller-supplied field names into labelled missing fields.
func NamedFields(names []string) []models.MissingField {
	fields := make([]models.MissingField, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		fields = append(fields, models.MissingField{Field: name, Label: fieldLabel(name)})
	}
	return fields
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "not": true, "but": true,
	"our": true, "has": true, "have": true, "was": true, "are": true, "its": true,
	"this": true, "that": true, "from": true, "when": true, "there": true, "any": true,
}

func tokenize(parts ...string) map[string]bool {
	tokens := map[string]bool{}
	for _, p := range parts {
		words := strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len(w) >= 3 && !stopwords[w] {
				tokens[w] = true
			}
		}
	}
	return tokens
}

// MatchSheets ranks sheets by how many request tokens appear in the sheet's
// title, keywords, appliance type and brand. Sheets scoring zero are dropped.
func MatchSheets(in TriageInput, sheets []models.ServiceSheet) []models.SheetMatch {
	request := tokenize(in.Description, in.ApplianceType, in.Brand, in.ModelNumber)
	matches := []models.SheetMatch{}
	for _, sheet := range sheets {
		sheetTokens := tokenize(append([]string{sheet.Title, sheet.ApplianceType, sheet.Brand}, sheet.Keywords...)...)
		score := 0
		for t := range request {
			if sheetTokens[t] {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, models.SheetMatch{ID: sheet.ID, Title: sheet.Title, URL: sheet.URL, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > maxSheetMatches {
		matches = matches[:maxSheetMatches]
	}
	return matches
}

// TriageAnalyzer classifies a request with the rules engine, or with the
// LLM when one is configured. An LLM failure fails the analysis.
type TriageAnalyzer struct {
	llm LLM
}

func NewTriageAnalyzer(llm LLM) *TriageAnalyzer {
	return &TriageAnalyzer{llm: llm}
}

func (a *TriageAnalyzer) Analyze(ctx context.Context, in TriageInput, sheets []models.ServiceSheet) (*TriageResult, error) {
	result := &TriageResult{
		Urgency:       ClassifyUrgency(in.Description),
		MissingFields: DetectMissingFields(in),
		MatchedSheets: MatchSheets(in, sheets),
		Source:        TriageSourceRules,
	}
	if a.llm == nil {
		result.Summary = rulesSummary(in, result)
		return result, nil
	}
	return a.analyzeWithLLM(ctx, in, result)
}

func rulesSummary(in TriageInput, r *TriageResult) string {
	subject := "Service"
	if in.ApplianceType != "" {
		first, size := utf8.DecodeRuneInString(in.ApplianceType)
		subject = string(unicode.ToUpper(first)) + in.ApplianceType[size:]
	}
	return fmt.Sprintf("%s request, %s urgency; %d missing field(s), %d matching sheet(s).",
		subject, r.Urgency, len(r.MissingFields), len(r.MatchedSheets))
}

const triageSystemPrompt = `You triage home appliance service requests for a field service company.
Respond with a JSON object only:
{"urgency": "emergency|high|normal|low",
 "missing_fields": [{"field": "<name>", "reason": "<why it is needed>"}],
 "summary": "<one sentence for the dispatcher>",
 "sheet_ids": [<ids of relevant candidate sheets>]}
Use emergency only for safety hazards (gas, fire, smoke, electrical sparking, flooding).
Field names: phone, address, appliance_type, brand, model_number, description, preferred_date.`

type llmTriage struct {
	Urgency       string `json:"urgency"`
	MissingFields []struct {
		Field  string `json:"field"`
		Reason string `json:"reason"`
	} `json:"missing_fields"`
	Summary  string `json:"summary"`
	SheetIDs []uint `json:"sheet_ids"`
}

func (a *TriageAnalyzer) analyzeWithLLM(ctx context.Context, in TriageInput, rules *TriageResult) (*TriageResult, error) {
	prompt, err := json.Marshal(map[string]interface{}{
		"request":          in,
		"candidate_sheets": rules.MatchedSheets,
	})
	if err != nil {
		return nil, err
	}
	raw, err := a.llm.CompleteJSON(ctx, triageSystemPrompt, string(prompt))
	if err != nil {
		return nil, fmt.Errorf("triage model call failed: %w", err)
	}

	var out llmTriage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("triage model returned invalid JSON: %w", err)
	}
	switch out.Urgency {
	case models.UrgencyEmergency, models.UrgencyHigh, models.UrgencyNormal, models.UrgencyLow:
	default:
		return nil, fmt.Errorf("triage model returned unknown urgency %q", out.Urgency)
	}

	result := &TriageResult{
		Urgency:       out.Urgency,
		MissingFields: []models.MissingField{},
		MatchedSheets: []models.SheetMatch{},
		Summary:       out.Summary,
		Source:        TriageSourceLLM,
		Model:         a.llm.ModelName(),
	}
	for _, f := range out.MissingFields {
		if f.Field == "" {
			continue
		}
		result.MissingFields = append(result.MissingFields, models.MissingField{
			Field:  f.Field,
			Label:  fieldLabel(f.Field),
			Reason: f.Reason,
		})
	}
	keep := map[uint]bool{}
	for _, id := range out.SheetIDs {
		keep[id] = true
	}
	for _, m := range rules.MatchedSheets {
		if keep[m.ID] {
			result.MatchedSheets = append(result.MatchedSheets, m)
		}
	}
	return result, nil
}

// TriageService runs the analyzer for a stored service and records the result.
type TriageService struct {
	db       *gorm.DB
	analyzer *TriageAnalyzer
	events   Emitter
	logger   logrus.FieldLogger
}

func NewTriageService(db *gorm.DB, analyzer *TriageAnalyzer, events Emitter, logger logrus.FieldLogger) *TriageService {
	return &TriageService{db: db, analyzer: analyzer, events: events, logger: logger}
}

// InputFor assembles the triage input from a service and its relations.
func InputFor(service models.Service) TriageInput {
	in := TriageInput{
		Description:   service.Description,
		Address:       service.Address,
		PreferredDate: service.PreferredDate,
	}
	if service.Contact != nil {
		in.Phone = service.Contact.Phone
		if in.Address == "" {
			in.Address = service.Contact.Address
		}
	}
	if service.Appliance != nil {
		in.ApplianceType = service.Appliance.ApplianceType
		in.Brand = service.Appliance.Brand
		in.ModelNumber = service.Appliance.ModelNumber
	}
	return in
}

// Run triages one service of the organization.
func (s *TriageService) Run(ctx context.Context, organizationID, serviceID uint) (*models.ServiceTriage, error) {
	var service models.Service
	err := s.db.WithContext(ctx).Preload("Contact").Preload("Appliance").
		Where("id = ? AND organization_id = ?", serviceID, organizationID).
		First(&service).Error
	if err != nil {
		return nil, err
	}

	var sheets []models.ServiceSheet
	if err := s.db.WithContext(ctx).Where("organization_id = ?", organizationID).Find(&sheets).Error; err != nil {
		return nil, fmt.Errorf("failed to load service sheets: %w", err)
	}

	result, err := s.analyzer.Analyze(ctx, InputFor(service), sheets)
	if err != nil {
		return nil, err
	}

	triage := models.ServiceTriage{
		ServiceID:     service.ID,
		Urgency:       result.Urgency,
		MissingFields: result.MissingFields,
		MatchedSheets: result.MatchedSheets,
		Summary:       result.Summary,
		Source:        result.Source,
		ModelName:     result.Model,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&triage).Error; err != nil {
			return err
		}
		return tx.Model(&models.Service{}).Where("id = ?", service.ID).Update("urgency", result.Urgency).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save triage: %w", err)
	}

	utils.LogEvent(s.logger, "service_triaged", map[string]interface{}{
		"service_id": service.ID,
		"urgency":    result.Urgency,
		"source":     result.Source,
	})
	if s.events != nil {
		payload := ToPayload(triage)
		payload["service_id"] = service.ID
		payload["contact_id"] = service.ContactID
		s.events.Emit(ctx, Event{OrganizationID: organizationID, Type: EventServiceTriaged, Payload: payload})
	}
	return &triage, nil
}

// Latest returns the most recent triage of a service.
func (s *TriageService) Latest(ctx context.Context, serviceID uint) (*models.ServiceTriage, error) {
	var triage models.ServiceTriage
	err := s.db.WithContext(ctx).Where("service_id = ?", serviceID).Order("created_at desc, id desc").First(&triage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &triage, nil
}
