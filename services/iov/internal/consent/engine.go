package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iovid/services/iov/internal/interactions"
	"iovid/services/iov/internal/ledger"
	"iovid/services/iov/internal/oracle"
	"iovid/services/iov/internal/sensors"
	"iovid/services/iov/internal/wallet"
)

var (
	// ErrEvaluationFailed wraps failures to persist the outcome of an
	// evaluation. Oracle failures do not produce it; they degrade to a denial.
	ErrEvaluationFailed = errors.New("consent: evaluation failed")
	// ErrRequestNotFound means no pending request matches the given id.
	ErrRequestNotFound = errors.New("consent: pending request not found")
)

// Request is one inbound data sharing request.
type Request struct {
	RequestID     string
	RequesterDID  string
	RequesterType string
	OwnerDID      string
	DataType      string
	Reason        string
	IsEmergency   bool
	ReplyURL      string
}

// Status classifies the evaluation outcome.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusPending  Status = "pending"
)

// Outcome is the result of evaluating or answering a request.
type Outcome struct {
	Status        Status         `json:"status"`
	Justification string         `json:"justification,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	TxHash        string         `json:"tx_hash,omitempty"`
	SenderBlocked bool           `json:"sender_blocked,omitempty"`
}

// Engine runs the decision pipeline: block list, policy matrix, oracle
// review, then recording or queueing.
type Engine struct {
	wallets  wallet.Store
	oracle   oracle.Generator
	sensors  sensors.Provider
	recorder *interactions.Recorder
	timeout  time.Duration
	log      *slog.Logger
}

func NewEngine(wallets wallet.Store, gen oracle.Generator, sp sensors.Provider, rec *interactions.Recorder, timeout time.Duration, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{wallets: wallets, oracle: gen, sensors: sp, recorder: rec, timeout: timeout, log: logger}
}

// Evaluate runs req through the pipeline. A blocked sender is refused before
// any oracle call. Oracle errors and timeouts degrade to a recorded denial,
// never to an open request. A parsed verdict resolves the request only when
// it auto-shares or trips the motion-safety block; any other verdict,
// approval or denial alike, is advisory and waits for the owner.
func (e *Engine) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	w, err := e.wallets.Get(ctx, req.OwnerDID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: load wallet: %v", ErrEvaluationFailed, err)
	}
	if w.IsBlocked(req.RequesterDID) {
		e.log.Info("consent: refusing blocked sender", "requester", req.RequesterDID, "owner", req.OwnerDID)
		return Outcome{Status: StatusDenied, Justification: "sender is blocked", SenderBlocked: true}, nil
	}

	switch CheckPermission(w.Policies, req.RequesterType, req.DataType, req.IsEmergency) {
	case PermissionDenied:
		return e.deny(ctx, req, "policy does not permit this requester type for "+req.DataType)
	case PermissionGranted:
		snap, err := e.sensors.Read(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: read sensors: %v", ErrEvaluationFailed, err)
		}
		return e.approve(ctx, req, "policy grants access without owner approval", dataFor(req.DataType, snap))
	}

	snap, err := e.sensors.Read(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: read sensors: %v", ErrEvaluationFailed, err)
	}

	octx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	narrative, err := e.oracle.Generate(octx, CraftPrompt(req, snap, w.Policies))
	if err != nil {
		e.log.Warn("consent: oracle unavailable, denying", "request", req.RequestID, "err", err)
		return e.deny(ctx, req, "decision service unavailable")
	}

	v := ParseVerdict(narrative)

	if !v.MotionSafe && v.Suspicious {
		reason := fmt.Sprintf("suspicious request while vehicle in motion, speed %g km/h", snap.Speed)
		_, err := e.wallets.Mutate(ctx, req.OwnerDID, func(w *wallet.Wallet) error {
			w.Block(req.RequesterDID, reason, time.Now().UTC())
			return nil
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: block sender: %v", ErrEvaluationFailed, err)
		}
		out, err := e.deny(ctx, req, reason)
		out.SenderBlocked = true
		return out, err
	}

	if v.AutoShare() {
		data := v.Data
		if data == nil {
			data = dataFor(req.DataType, snap)
		}
		return e.approve(ctx, req, v.Justification, data)
	}

	// Every other verdict, including an explicit deny, waits for the owner.
	// Only the owner's answer resolves a queued request.
	return e.queue(ctx, req, v.Justification)
}

// Respond applies the owner's answer to a queued request and records the
// response.
func (e *Engine) Respond(ctx context.Context, ownerDID, requestID string, approve bool) (Outcome, error) {
	var taken wallet.Request
	_, err := e.wallets.Mutate(ctx, ownerDID, func(w *wallet.Wallet) error {
		r, ok := w.TakeRequest(requestID)
		if !ok {
			return ErrRequestNotFound
		}
		taken = r
		return nil
	})
	if errors.Is(err, ErrRequestNotFound) {
		return Outcome{}, err
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
	}

	req := Request{
		RequestID:     taken.ID,
		RequesterDID:  taken.RequesterDID,
		RequesterType: taken.RequesterType,
		OwnerDID:      ownerDID,
		DataType:      taken.DataType,
		Reason:        taken.Reason,
		ReplyURL:      taken.ReplyURL,
	}
	if !approve {
		return e.deny(ctx, req, "owner declined the request")
	}
	snap, err := e.sensors.Read(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: read sensors: %v", ErrEvaluationFailed, err)
	}
	return e.approve(ctx, req, "owner approved the request", dataFor(req.DataType, snap))
}

func (e *Engine) approve(ctx context.Context, req Request, justification string, data map[string]any) (Outcome, error) {
	in, err := e.record(ctx, req, "approval", justification, data)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := e.wallets.Mutate(ctx, req.OwnerDID, func(w *wallet.Wallet) error {
		w.SharedData = append(w.SharedData, wallet.SharedRecord{
			RequesterDID: req.RequesterDID,
			DataType:     req.DataType,
			SharedAt:     time.Now().UTC(),
		})
		return nil
	}); err != nil {
		e.log.Warn("record shared data", "owner", req.OwnerDID, "err", err)
	}
	return Outcome{Status: StatusApproved, Justification: justification, Data: data, TxHash: in.TxHash}, nil
}

func (e *Engine) deny(ctx context.Context, req Request, justification string) (Outcome, error) {
	in, err := e.record(ctx, req, "denial", justification, nil)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusDenied, Justification: justification, TxHash: in.TxHash}, nil
}

func (e *Engine) record(ctx context.Context, req Request, responseType, justification string, data map[string]any) (ledger.Interaction, error) {
	payload := map[string]any{
		"request_id":    req.RequestID,
		"response_type": responseType,
		"data_type":     req.DataType,
		"justification": justification,
		"sender_did":    req.OwnerDID,
		"recipient_did": req.RequesterDID,
	}
	if data != nil {
		payload["data"] = data
	}
	typ := ledger.InteractionResponse
	if req.RequesterType == "mechanic" {
		typ = ledger.InteractionMechanicResponse
	}
	in, err := e.recorder.Record(ctx, req.OwnerDID, req.RequesterDID, typ, payload)
	if err != nil {
		return ledger.Interaction{}, fmt.Errorf("%w: record response: %v", ErrEvaluationFailed, err)
	}
	return in, nil
}

func (e *Engine) queue(ctx context.Context, req Request, justification string) (Outcome, error) {
	_, err := e.wallets.Mutate(ctx, req.OwnerDID, func(w *wallet.Wallet) error {
		w.PendingRequests = append(w.PendingRequests, wallet.Request{
			ID:            req.RequestID,
			RequesterDID:  req.RequesterDID,
			RequesterType: req.RequesterType,
			DataType:      req.DataType,
			Reason:        req.Reason,
			Justification: justification,
			ReplyURL:      req.ReplyURL,
			ReceivedAt:    time.Now().UTC(),
		})
		w.Notifications = append(w.Notifications, wallet.Notification{
			ID:        uuid.NewString(),
			Kind:      "consent_request",
			Message:   fmt.Sprintf("%s requests access to %s", req.RequesterDID, req.DataType),
			CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: queue request: %v", ErrEvaluationFailed, err)
	}
	return Outcome{Status: StatusPending, Justification: justification}, nil
}

// dataFor projects the telemetry snapshot onto the requested data type.
func dataFor(dataType string, snap sensors.Snapshot) map[string]any {
	switch dataType {
	case "location":
		return map[string]any{"latitude": snap.Latitude, "longitude": snap.Longitude}
	case "sensor_data":
		return map[string]any{
			"engine_temperature": snap.EngineTemperature,
			"tire_pressure":      snap.TirePressure,
			"speed":              snap.Speed,
			"diagnostic_codes":   snap.DiagnosticCodes,
			"battery_level":      snap.BatteryLevel,
		}
	case "driving_behavior":
		return map[string]any{"speed": snap.Speed}
	case "vehicle_info":
		return map[string]any{"diagnostic_codes": snap.DiagnosticCodes, "battery_level": snap.BatteryLevel}
	case "maintenance_history":
		return map[string]any{"diagnostic_codes": snap.DiagnosticCodes}
	default:
		return map[string]any{}
	}
}
