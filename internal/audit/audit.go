// Package audit indexes one record per processed turn into
// Elasticsearch for operator analytics. Indexing is asynchronous and
// fail-silent: an analytics outage never touches a shopper's turn.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"shopbot-core/internal/common/logger"
	"shopbot-core/internal/common/metrics"
)

const defaultIndex = "bot-turns"

// TurnRecord is the indexed document for one turn.
type TurnRecord struct {
	TurnID            string    `json:"turnId"`
	MerchantID        string    `json:"merchantId"`
	SessionID         string    `json:"sessionId"`
	Channel           string    `json:"channel"`
	Intent            string    `json:"intent,omitempty"`
	Confidence        float64   `json:"confidence,omitempty"`
	ShortCircuitStage string    `json:"shortCircuitStage,omitempty"`
	HandoffReason     string    `json:"handoffReason,omitempty"`
	LatencyMs         int64     `json:"latencyMs"`
	Timestamp         time.Time `json:"timestamp"`
}

type Indexer struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewIndexer(es *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	if index == "" {
		index = defaultIndex
	}
	return &Indexer{
		es:      es,
		index:   index,
		timeout: 5 * time.Second,
		logger: log.WithFields(map[string]interface{}{
			"component": "audit",
		}),
	}
}

// Record assigns the turn id and indexes the document in the
// background with a detached context.
func (i *Indexer) Record(record TurnRecord) string {
	record.TurnID = uuid.NewString()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	go i.indexRecord(record)
	return record.TurnID
}

func (i *Indexer) indexRecord(record TurnRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	body, err := json.Marshal(record)
	if err != nil {
		i.logger.WithError(err).Warn("audit record marshal failed", nil)
		return
	}

	res, err := i.es.Index(
		i.index,
		bytes.NewReader(body),
		i.es.Index.WithContext(ctx),
		i.es.Index.WithDocumentID(record.TurnID),
	)
	if err != nil {
		metrics.AuditIndexFailures.Inc()
		i.logger.WithError(err).Warn("audit index failed", map[string]interface{}{
			"turnId": record.TurnID,
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.AuditIndexFailures.Inc()
		i.logger.Warn("audit index rejected", map[string]interface{}{
			"turnId": record.TurnID,
			"status": res.Status(),
		})
	}
}
