// Package interactions writes the message audit trail to the ledger and
// answers queries over it.
package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"iovid/services/iov/internal/addrpool"
	"iovid/services/iov/internal/ledger"
)

// Recorder serializes ledger writes per source identity so transactions from
// one signing address commit in order.
type Recorder struct {
	pool   *addrpool.Manager
	ledger ledger.Ledger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRecorder(pool *addrpool.Manager, lg ledger.Ledger) *Recorder {
	return &Recorder{pool: pool, ledger: lg, locks: make(map[string]*sync.Mutex)}
}

func (r *Recorder) sourceLock(did string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[did]
	if !ok {
		l = &sync.Mutex{}
		r.locks[did] = l
	}
	return l
}

// Record signs and submits one interaction from sourceDID to destDID.
func (r *Recorder) Record(ctx context.Context, sourceDID, destDID string, typ ledger.InteractionType, payload map[string]any) (ledger.Interaction, error) {
	l := r.sourceLock(sourceDID)
	l.Lock()
	defer l.Unlock()

	src, err := r.pool.Acquire(ctx, sourceDID)
	if err != nil {
		return ledger.Interaction{}, fmt.Errorf("interactions: acquire source account: %w", err)
	}
	destAddr, err := r.ledger.AddressByDID(ctx, destDID)
	if err != nil {
		return ledger.Interaction{}, fmt.Errorf("interactions: resolve destination %s: %w", destDID, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ledger.Interaction{}, err
	}
	in := ledger.Interaction{
		SourceAddress:      src.Address,
		SourceDID:          sourceDID,
		DestinationAddress: destAddr,
		DestinationDID:     destDID,
		Type:               typ,
		Payload:            body,
	}
	txHash, err := r.ledger.RecordInteraction(ctx, in)
	if err != nil {
		return ledger.Interaction{}, err
	}
	in.TxHash = txHash
	return in, nil
}

// History returns every interaction the entity sent or received, oldest
// first.
func (r *Recorder) History(ctx context.Context, did string) ([]ledger.Interaction, error) {
	return r.ledger.EntityInteractions(ctx, did)
}

// Unanswered returns the requests addressed to did that have no matching
// response yet. Requests and responses pair by the request_id field of the
// payload, and only a response recorded after the request counts as an
// answer.
func (r *Recorder) Unanswered(ctx context.Context, did string) ([]ledger.Interaction, error) {
	all, err := r.ledger.EntityInteractions(ctx, did)
	if err != nil {
		return nil, err
	}
	answeredAt := make(map[string]int64)
	for _, in := range all {
		if in.Type != ledger.InteractionResponse && in.Type != ledger.InteractionMechanicResponse {
			continue
		}
		if id := payloadRequestID(in.Payload); id != "" && in.Timestamp > answeredAt[id] {
			answeredAt[id] = in.Timestamp
		}
	}
	var out []ledger.Interaction
	for _, in := range all {
		if in.DestinationDID != did {
			continue
		}
		if in.Type != ledger.InteractionRequest && in.Type != ledger.InteractionMechanicRequest {
			continue
		}
		id := payloadRequestID(in.Payload)
		if id == "" || answeredAt[id] <= in.Timestamp {
			out = append(out, in)
		}
	}
	return out, nil
}

func payloadRequestID(payload []byte) string {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.RequestID
}
