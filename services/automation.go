package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fieldcrm/models"
	"fieldcrm/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ActionExecutor runs one automation action type.
type ActionExecutor interface {
	// Validate checks an action's config at automation creation time.
	Validate(config map[string]interface{}) error
	Execute(ctx context.Context, action models.AutomationAction, ev Event) (string, error)
}

// AutomationDispatcher matches events against active automations and runs
// their actions in order. Actions are best-effort: a failed action is
// recorded and the next one still runs. Nothing is retried.
type AutomationDispatcher struct {
	db        *gorm.DB
	executors map[string]ActionExecutor
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewAutomationDispatcher(db *gorm.DB, executors map[string]ActionExecutor, logger logrus.FieldLogger) *AutomationDispatcher {
	return &AutomationDispatcher{
		db:        db,
		executors: executors,
		logger:    logger,
		now:       time.Now,
	}
}

// ValidateActions rejects empty or malformed action lists.
func (d *AutomationDispatcher) ValidateActions(actions []models.AutomationAction) error {
	if len(actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	for i, action := range actions {
		executor, ok := d.executors[action.Type]
		if !ok {
			return fmt.Errorf("action %d: unknown type %q", i+1, action.Type)
		}
		if err := executor.Validate(action.Config); err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, action.Type, err)
		}
	}
	return nil
}

// Dispatch runs every matching automation and returns the recorded runs.
func (d *AutomationDispatcher) Dispatch(ctx context.Context, ev Event) ([]models.AutomationRun, error) {
	var automations []models.Automation
	err := d.db.WithContext(ctx).
		Where("active = ? AND trigger_type = ?", true, ev.Type).
		Where("organization_id = ? OR organization_id IS NULL", ev.OrganizationID).
		Order("id asc").
		Find(&automations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load automations: %w", err)
	}

	var runs []models.AutomationRun
	for _, automation := range automations {
		if !MatchesTrigger(automation.TriggerConfig, ev.Payload) {
			continue
		}
		run := d.execute(ctx, automation, ev)
		if err := d.db.WithContext(ctx).Create(&run).Error; err != nil {
			utils.LogError(d.logger, "automation_run_record", err, map[string]interface{}{
				"automation_id": automation.ID,
			})
		}
		err := d.db.WithContext(ctx).Model(&models.Automation{}).
			Where("id = ?", automation.ID).
			Updates(map[string]interface{}{
				"run_count":   gorm.Expr("run_count + 1"),
				"last_run_at": run.FinishedAt,
			}).Error
		if err != nil {
			utils.LogError(d.logger, "automation_run_count", err, map[string]interface{}{
				"automation_id": automation.ID,
			})
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (d *AutomationDispatcher) execute(ctx context.Context, automation models.Automation, ev Event) models.AutomationRun {
	run := models.AutomationRun{
		AutomationID:   automation.ID,
		OrganizationID: ev.OrganizationID,
		EventType:      ev.Type,
		Payload:        ev.Payload,
		StartedAt:      d.now(),
	}

	failed := 0
	for i, action := range automation.Actions {
		result := models.ActionResult{Index: i, Type: action.Type}

		executor, ok := d.executors[action.Type]
		if !ok {
			result.Status = "failed"
			result.Error = fmt.Sprintf("unknown action type %q", action.Type)
		} else if output, err := executor.Execute(ctx, action, ev); err != nil {
			result.Status = "failed"
			result.Error = err.Error()
		} else {
			result.Status = "success"
			result.Output = output
		}

		if result.Status == "failed" {
			failed++
			utils.LogError(d.logger, "automation_action", fmt.Errorf("%s", result.Error), map[string]interface{}{
				"automation_id": automation.ID,
				"action_index":  i,
				"action_type":   action.Type,
			})
		}
		run.Results = append(run.Results, result)
	}

	switch {
	case failed == 0:
		run.Status = models.RunStatusSuccess
	case failed == len(automation.Actions):
		run.Status = models.RunStatusFailed
	default:
		run.Status = models.RunStatusPartial
	}
	run.FinishedAt = d.now()
	return run
}

// MatchesTrigger reports whether every condition in config equals the
// payload value at the same key. Dotted keys walk nested objects.
func MatchesTrigger(config map[string]interface{}, payload map[string]interface{}) bool {
	for key, want := range config {
		got, ok := lookup(payload, key)
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func lookup(payload map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// RenderTemplate replaces {{key.path}} placeholders with payload values.
// Unknown keys render as empty strings.
func RenderTemplate(s string, payload map[string]interface{}) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := lookup(payload, key)
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

func configString(config map[string]interface{}, key string) string {
	v, ok := config[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func requireKeys(config map[string]interface{}, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(configString(config, k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config: %s", strings.Join(missing, ", "))
	}
	return nil
}
