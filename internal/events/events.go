// Package events publishes engine lifecycle events to NATS. The publisher is
// optional: a nil *Publisher is safe to call, so the engine runs without a
// broker in development.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/ledger"
	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Subjects relative to the configured prefix.
const (
	SubjectContactIngested     = "contact.ingested"
	SubjectDecisionRecorded    = "decision.recorded"
	SubjectDispatchRequested   = "dispatch.requested"
	SubjectDispatchAcked       = "dispatch.acked"
	SubjectAllocationPublished = "allocation.published"
	SubjectReservationExpired  = "anomaly.reservation_expired"
)

// Publisher wraps a NATS connection with the engine's subject layout.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials NATS with reconnect handling. An empty URL returns a nil
// publisher, which disables publishing.
func Connect(url, prefix string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if prefix == "" {
		prefix = "outreach"
	}
	conn, err := nats.Connect(
		url,
		nats.Name("outreach-engine"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "events: connect nats")
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

// Close drains the connection. Safe on nil.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) publish(subject string, payload any) error {
	if p == nil || p.conn == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrapf(err, "events: marshal %s", subject)
	}
	if err := p.conn.Publish(p.prefix+"."+subject, data); err != nil {
		return eris.Wrapf(err, "events: publish %s", subject)
	}
	return nil
}

// ContactsIngested announces an accepted ingest batch.
func (p *Publisher) ContactsIngested(_ context.Context, source, batchID string, accepted, duplicates int) error {
	return p.publish(SubjectContactIngested, map[string]any{
		"source":     source,
		"batch_id":   batchID,
		"accepted":   accepted,
		"duplicates": duplicates,
	})
}

// DecisionRecorded announces a recorded decision.
func (p *Publisher) DecisionRecorded(_ context.Context, d model.Decision) error {
	return p.publish(SubjectDecisionRecorded, d)
}

// RequestDispatch publishes a dispatch request for an admitted decision. It
// satisfies the decision core's Dispatcher contract.
func (p *Publisher) RequestDispatch(_ context.Context, d model.Decision) error {
	if p == nil || p.conn == nil {
		// No broker means nothing can deliver; surface that instead of
		// pretending the request went out.
		return eris.New("events: no broker configured for dispatch")
	}
	return p.publish(SubjectDispatchRequested, map[string]any{
		"decision_id": d.ID,
		"request_id":  d.RequestID,
		"identity_id": d.IdentityID,
		"campaign_id": d.CampaignID,
		"channel":     string(d.Channel),
		"content_ref": d.ContentRef,
		"cost":        d.Scores.ExpectedCost,
	})
}

// DispatchAcked announces a settled dispatch outcome.
func (p *Publisher) DispatchAcked(_ context.Context, decisionID string, actualCost float64, succeeded bool) error {
	return p.publish(SubjectDispatchAcked, map[string]any{
		"decision_id": decisionID,
		"actual_cost": actualCost,
		"succeeded":   succeeded,
	})
}

// AllocationPublished announces a completed allocation run.
func (p *Publisher) AllocationPublished(_ context.Context, run model.AllocationRun) error {
	return p.publish(SubjectAllocationPublished, run)
}

// ReservationExpired announces a reservation that aged out unsettled.
func (p *Publisher) ReservationExpired(_ context.Context, res ledger.Reservation) error {
	return p.publish(SubjectReservationExpired, map[string]any{
		"reservation_id": res.ID,
		"scope":          res.Scope.String(),
		"decision_id":    res.DecisionID,
		"amount":         res.Amount,
		"expired_at":     res.ExpiresAt,
	})
}
