package multiperson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"animate3d/internal/execution"
	"animate3d/internal/jobs"
	"animate3d/internal/logging"
	"animate3d/internal/params"
	"animate3d/internal/services"
)

// Submitter creates jobs.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (string, error)
}

// Executor polls jobs.
type Executor interface {
	Execute(ctx context.Context, rid string, reg execution.Registration) (*execution.Handle, error)
}

// Source reads remote job state for detection jobs this process did not
// observe itself.
type Source interface {
	Status(ctx context.Context, rid string) (jobs.StatusReport, error)
	Result(ctx context.Context, report jobs.StatusReport) (jobs.Result, error)
}

// Orchestrator composes detection and processing jobs.
type Orchestrator struct {
	submitter Submitter
	executor  Executor
	source    Source
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds an Orchestrator.
func New(submitter Submitter, executor Executor, source Source, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		submitter: submitter,
		executor:  executor,
		source:    source,
		logger:    logging.NewComponentLogger(logger, "multiperson"),
		sessions:  make(map[string]*Session),
	}
}

// Prepare submits a detection job for mediaURL and executes it like any
// job. A session is opened once it succeeds, holding the detected persons.
func (o *Orchestrator) Prepare(ctx context.Context, mediaURL string, reg execution.Registration) (string, error) {
	ctx = services.WithJobKind(ctx, string(jobs.KindMultiDetect))
	rid, err := o.submitter.Submit(ctx, jobs.Request{Kind: jobs.KindMultiDetect, MediaURL: mediaURL})
	if err != nil {
		return "", err
	}

	userResult := reg.OnResult
	reg.OnResult = func(outcome jobs.Outcome) {
		if outcome.Succeeded() {
			o.capture(rid, outcome.Result)
		}
		if userResult != nil {
			userResult(outcome)
		}
	}
	if !reg.Blocking && userResult == nil && reg.OnProgress == nil && reg.OnError == nil {
		// Nothing observes the run; Start queries the service instead.
		reg.OnResult = nil
	}
	if _, err := o.executor.Execute(ctx, rid, reg); err != nil {
		return rid, err
	}
	return rid, nil
}

// Start binds a character model to every detected slot and submits the
// processing job. The detection job must have succeeded and the mapping must
// cover exactly the detected slots.
func (o *Orchestrator) Start(ctx context.Context, detectionRID string, slotToModel map[string]string, p params.ProcessParams, reg execution.Registration) (string, error) {
	detectionRID = strings.TrimSpace(detectionRID)
	if detectionRID == "" {
		return "", services.Wrap(services.ErrValidation, "multiperson", "start", "detection rid is required", nil)
	}
	sess, err := o.detection(ctx, detectionRID)
	if err != nil {
		return "", err
	}
	models, err := bindModels(sess, slotToModel)
	if err != nil {
		return "", err
	}

	ctx = services.WithJobKind(ctx, string(jobs.KindMultiProcess))
	rid, err := o.submitter.Submit(ctx, jobs.Request{
		Kind:         jobs.KindMultiProcess,
		DetectionRID: detectionRID,
		Params:       p,
		Models:       models,
	})
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	if s := o.sessions[detectionRID]; s != nil {
		s.ProcessingRID = rid
		s.Bindings = make(map[string]string, len(models))
		for _, m := range models {
			s.Bindings[m.TrackingID] = m.ModelID
		}
	}
	o.mu.Unlock()

	o.logger.Info("multi-person processing started",
		logging.String(logging.FieldEventType, "multiperson_started"),
		logging.String("detection_rid", detectionRID),
		logging.RID(rid),
		logging.Int("persons", len(models)),
	)
	h, err := o.executor.Execute(ctx, rid, reg)
	o.releaseWhenDone(detectionRID, rid, h)
	if err != nil {
		return rid, err
	}
	return rid, nil
}

// releaseWhenDone closes the session of detectionRID once the processing job
// rid is no longer polled.
func (o *Orchestrator) releaseWhenDone(detectionRID, rid string, h *execution.Handle) {
	if h == nil {
		o.release(detectionRID, rid)
		return
	}
	select {
	case <-h.Done():
		o.release(detectionRID, rid)
	default:
		go func() {
			<-h.Done()
			o.release(detectionRID, rid)
		}()
	}
}

func (o *Orchestrator) release(detectionRID, rid string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s := o.sessions[detectionRID]; s != nil && s.ProcessingRID == rid {
		delete(o.sessions, detectionRID)
	}
}

// Session returns a copy of the workflow state keyed by detection RID. A
// session exists from a successful detection until the processing job
// started from it resolves.
func (o *Orchestrator) Session(detectionRID string) (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[detectionRID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Persons returns the persons detected by detectionRID, querying the service
// when this process did not observe the detection job finish.
func (o *Orchestrator) Persons(ctx context.Context, detectionRID string) ([]Person, error) {
	sess, err := o.detection(ctx, detectionRID)
	if err != nil {
		return nil, err
	}
	return sess.Persons, nil
}

func (o *Orchestrator) capture(rid string, result *jobs.Result) {
	persons := PersonsFromLink(result.Link)
	o.mu.Lock()
	s := o.sessions[rid]
	if s == nil {
		s = &Session{DetectionRID: rid}
		o.sessions[rid] = s
	}
	s.Detected = true
	s.Persons = persons
	o.mu.Unlock()

	o.logger.Info("persons detected",
		logging.String(logging.FieldEventType, "persons_detected"),
		logging.RID(rid),
		logging.Int("persons", len(persons)),
	)
}

// detection returns the session of a succeeded detection job.
func (o *Orchestrator) detection(ctx context.Context, rid string) (Session, error) {
	if sess, ok := o.Session(rid); ok && sess.Detected {
		return sess, nil
	}
	report, err := o.source.Status(ctx, rid)
	if err != nil {
		return Session{}, err
	}
	if report.Status != jobs.StatusSuccess {
		msg := fmt.Sprintf("detection job %s is %s, not SUCCESS", rid, report.Status)
		if !report.Found {
			msg = fmt.Sprintf("detection job %s is unknown", rid)
		}
		return Session{}, services.Wrap(services.ErrValidation, "multiperson", "start", msg, nil)
	}
	result, err := o.source.Result(ctx, report)
	if err != nil {
		return Session{}, err
	}
	o.capture(rid, &result)
	sess, _ := o.Session(rid)
	return sess, nil
}

func bindModels(sess Session, slotToModel map[string]string) ([]params.ModelBinding, error) {
	invalid := func(err error) error {
		return services.Wrap(services.ErrValidation, "multiperson", "start", "invalid slot mapping", err)
	}
	detected := sess.Slots()
	if len(detected) == 0 {
		return nil, invalid(fmt.Errorf("detection job %s found no persons", sess.DetectionRID))
	}
	if len(slotToModel) == 0 {
		return nil, invalid(errors.New("no slot to model bindings given"))
	}

	normalized := make(map[string]string, len(slotToModel))
	var problems []error
	for slot, model := range slotToModel {
		key := NormalizeSlot(slot)
		if _, dup := normalized[key]; dup {
			problems = append(problems, fmt.Errorf("slot %s is bound more than once", key))
			continue
		}
		normalized[key] = strings.TrimSpace(model)
	}
	for _, slot := range detected {
		model, ok := normalized[slot]
		switch {
		case !ok:
			problems = append(problems, fmt.Errorf("detected slot %s has no model", slot))
		case model == "":
			problems = append(problems, fmt.Errorf("slot %s has an empty model id", slot))
		}
	}
	for slot := range normalized {
		if !slices.Contains(detected, slot) {
			problems = append(problems, fmt.Errorf("slot %s was not detected (detected: %s)", slot, strings.Join(detected, ", ")))
		}
	}
	if len(problems) > 0 {
		slices.SortFunc(problems, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
		return nil, invalid(errors.Join(problems...))
	}

	out := make([]params.ModelBinding, 0, len(detected))
	for _, slot := range detected {
		out = append(out, params.ModelBinding{TrackingID: slot, ModelID: normalized[slot]})
	}
	return out, nil
}
