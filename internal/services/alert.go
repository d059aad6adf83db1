package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsemon/pulsemon/internal/models"
	"github.com/pulsemon/pulsemon/internal/monerr"
)

// AlertRepository defines alert persistence plus the append-only
// transition history.
type AlertRepository interface {
	Save(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	Delete(ctx context.Context, id string) (bool, error)
	AppendHistory(ctx context.Context, t *models.AlertTransition) error
	History(ctx context.Context, alertID string, limit int) ([]*models.AlertTransition, error)
}

// Notifier is the external notification collaborator. It is invoked
// fire-and-forget: a failed notification never blocks evaluation or
// rolls back alert state.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert, message string) error
}

// LogNotifier is the default Notifier; it records firings in the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, alert *models.Alert, message string) error {
	n.logger.Info("alert notification",
		zap.String("alert_id", alert.ID),
		zap.String("alert", alert.Name),
		zap.String("severity", alert.Severity),
		zap.String("message", message),
	)
	return nil
}

// DefaultLookback is the window over which alert conditions read recent
// metric state.
const DefaultLookback = 5 * time.Minute

// AlertSpec carries the fields needed to create an alert.
type AlertSpec struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Condition       string `json:"condition"` // e.g. "cpu_usage > 80"
	Severity        string `json:"severity,omitempty"`
	Enabled         *bool  `json:"enabled,omitempty"`
	CooldownSeconds *int   `json:"cooldown_seconds,omitempty"`
}

// AlertService manages alert rules and evaluates them against recent
// metric state. Alert state is mutated only by the evaluation loop that
// owns this service, so evaluation itself needs no extra locking.
type AlertService struct {
	repo     AlertRepository
	reader   Reader
	notifier Notifier
	logger   *zap.Logger
	lookback time.Duration
	now      func() time.Time
	newID    func() string
}

// AlertOpt configures an AlertService.
type AlertOpt func(*AlertService)

// WithLookback overrides the evaluation lookback window.
func WithLookback(d time.Duration) AlertOpt {
	return func(svc *AlertService) {
		if d > 0 {
			svc.lookback = d
		}
	}
}

// WithAlertNow overrides the time source, for tests.
func WithAlertNow(now func() time.Time) AlertOpt {
	return func(svc *AlertService) {
		if now != nil {
			svc.now = now
		}
	}
}

// NewAlertService creates an AlertService. A nil notifier falls back to
// the log notifier.
func NewAlertService(
	repo AlertRepository,
	reader Reader,
	notifier Notifier,
	logger *zap.Logger,
	opts ...AlertOpt,
) *AlertService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	svc := &AlertService{
		repo:     repo,
		reader:   reader,
		notifier: notifier,
		logger:   logger,
		lookback: DefaultLookback,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create validates the spec, parses its condition once and stores the
// new alert in the pending state.
func (svc *AlertService) Create(ctx context.Context, spec AlertSpec) (*models.Alert, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, monerr.New(monerr.KindValidation, "alert name must not be empty")
	}

	cond, err := models.ParseCondition(spec.Condition)
	if err != nil {
		return nil, monerr.Wrap(monerr.KindValidation, "invalid alert condition", err)
	}

	severity := spec.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	if !models.ValidSeverity(severity) {
		return nil, monerr.Newf(monerr.KindValidation, "unknown severity %q", spec.Severity)
	}

	cooldown := models.DefaultCooldownSeconds
	if spec.CooldownSeconds != nil {
		if *spec.CooldownSeconds < 0 {
			return nil, monerr.New(monerr.KindValidation, "cooldown must not be negative")
		}
		cooldown = *spec.CooldownSeconds
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}

	now := svc.now().UTC()
	alert := &models.Alert{
		ID:              svc.newID(),
		Name:            spec.Name,
		Description:     spec.Description,
		Condition:       cond,
		Severity:        severity,
		Enabled:         enabled,
		CooldownSeconds: cooldown,
		State:           models.AlertStatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := svc.repo.Save(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Get returns an alert by id.
func (svc *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := svc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, monerr.Newf(monerr.KindNotFound, "alert %s does not exist", id)
	}
	return alert, nil
}

// List returns alerts matching the filter.
func (svc *AlertService) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	return svc.repo.List(ctx, filter)
}

// Update applies a partial patch to an existing alert.
func (svc *AlertService) Update(ctx context.Context, id string, patch models.AlertPatch) (*models.Alert, error) {
	alert, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, monerr.New(monerr.KindValidation, "alert name must not be empty")
		}
		alert.Name = *patch.Name
	}
	if patch.Description != nil {
		alert.Description = *patch.Description
	}
	if patch.Condition != nil {
		cond, err := models.ParseCondition(*patch.Condition)
		if err != nil {
			return nil, monerr.Wrap(monerr.KindValidation, "invalid alert condition", err)
		}
		alert.Condition = cond
	}
	if patch.Severity != nil {
		if !models.ValidSeverity(*patch.Severity) {
			return nil, monerr.Newf(monerr.KindValidation, "unknown severity %q", *patch.Severity)
		}
		alert.Severity = *patch.Severity
	}
	if patch.Enabled != nil {
		alert.Enabled = *patch.Enabled
	}
	if patch.CooldownSeconds != nil {
		if *patch.CooldownSeconds < 0 {
			return nil, monerr.New(monerr.KindValidation, "cooldown must not be negative")
		}
		alert.CooldownSeconds = *patch.CooldownSeconds
	}

	alert.UpdatedAt = svc.now().UTC()
	if err := svc.repo.Save(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Delete removes an alert by id.
func (svc *AlertService) Delete(ctx context.Context, id string) error {
	found, err := svc.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return monerr.Newf(monerr.KindNotFound, "alert %s does not exist", id)
	}
	return nil
}

// History returns the most recent transitions of an alert.
func (svc *AlertService) History(ctx context.Context, id string, limit int) ([]*models.AlertTransition, error) {
	if _, err := svc.Get(ctx, id); err != nil {
		return nil, err
	}
	return svc.repo.History(ctx, id, limit)
}

// EvaluateAll runs one evaluation tick over every enabled alert. A
// failure evaluating one alert never aborts the others.
func (svc *AlertService) EvaluateAll(ctx context.Context, now time.Time) error {
	enabled := true
	alerts, err := svc.repo.List(ctx, models.AlertFilter{Enabled: &enabled})
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if err := svc.evaluate(ctx, alert, now); err != nil {
			svc.logger.Warn("alert evaluation failed",
				zap.String("alert_id", alert.ID),
				zap.String("alert", alert.Name),
				zap.Error(err),
			)
		}
	}
	return nil
}

// evaluate runs the state machine for one alert:
// pending/resolved -> firing when the condition holds and the cooldown
// has elapsed; firing -> resolved when it stops holding.
func (svc *AlertService) evaluate(ctx context.Context, alert *models.Alert, now time.Time) error {
	points, err := svc.reader.Query(ctx, alert.Condition.Metric, nil, now.Add(-svc.lookback), now)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		// Absence of data is not failure: an alert over a silent
		// metric never fires.
		return nil
	}

	value := observedValue(points)
	holds := alert.Condition.Holds(value)

	switch {
	case holds && alert.State != models.AlertStateFiring:
		if !svc.cooldownElapsed(alert, now) {
			return nil
		}
		return svc.transition(ctx, alert, models.AlertStateFiring, value, now)
	case !holds && alert.State == models.AlertStateFiring:
		return svc.transition(ctx, alert, models.AlertStateResolved, value, now)
	}
	return nil
}

func (svc *AlertService) cooldownElapsed(alert *models.Alert, now time.Time) bool {
	return alert.LastTriggered == nil || now.Sub(*alert.LastTriggered) >= alert.Cooldown()
}

func (svc *AlertService) transition(
	ctx context.Context,
	alert *models.Alert,
	to string,
	value float64,
	now time.Time,
) error {
	from := alert.State
	alert.State = to
	alert.UpdatedAt = now.UTC()
	if to == models.AlertStateFiring {
		triggered := now.UTC()
		alert.LastTriggered = &triggered
	}

	if err := svc.repo.Save(ctx, alert); err != nil {
		return err
	}
	if err := svc.repo.AppendHistory(ctx, &models.AlertTransition{
		AlertID:   alert.ID,
		AlertName: alert.Name,
		From:      from,
		To:        to,
		Value:     value,
		At:        now.UTC(),
	}); err != nil {
		return err
	}

	if to == models.AlertStateFiring {
		message := fmt.Sprintf("[%s] %s: %s (observed %g)",
			strings.ToUpper(alert.Severity), alert.Name, alert.Condition.String(), value)
		if err := svc.notifier.Notify(ctx, alert, message); err != nil {
			// Fire-and-forget: notification failure never rolls back state.
			svc.logger.Warn("notification failed",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// observedValue folds the lookback window into one comparable value:
// the latest sample for gauges and summaries, the window sum for
// counters, the window mean for histograms.
func observedValue(points []*models.MetricPoint) float64 {
	latest := points[len(points)-1]
	switch latest.Type {
	case models.Counter:
		var sum float64
		for _, p := range points {
			sum += p.Value
		}
		return sum
	case models.Histogram:
		var sum float64
		for _, p := range points {
			sum += p.Value
		}
		return sum / float64(len(points))
	default:
		return latest.Value
	}
}
