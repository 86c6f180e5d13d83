package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot-core/internal/common/logger"
)

// fakeES captures index requests; the product header keeps the v8
// client's compatibility check happy.
type fakeES struct {
	mu       sync.Mutex
	docs     []TurnRecord
	paths    []string
	received chan struct{}
	fail     bool
}

func (f *fakeES) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		if f.fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		var doc TurnRecord
		json.NewDecoder(r.Body).Decode(&doc)
		f.mu.Lock()
		f.docs = append(f.docs, doc)
		f.paths = append(f.paths, r.URL.Path)
		f.mu.Unlock()
		w.Write([]byte(`{"result":"created"}`))
		select {
		case f.received <- struct{}{}:
		default:
		}
	}
}

func newFakeIndexer(t *testing.T, fake *fakeES) *Indexer {
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return NewIndexer(es, "bot-turns-test", logger.NewNoOpLogger())
}

func TestRecord_IndexesAsynchronously(t *testing.T) {
	fake := &fakeES{received: make(chan struct{}, 1)}
	indexer := newFakeIndexer(t, fake)

	turnID := indexer.Record(TurnRecord{
		MerchantID:        "merch-1",
		SessionID:         "sess-1",
		Channel:           "widget",
		Intent:            "product_search",
		Confidence:        0.93,
		ShortCircuitStage: "dispatch",
		LatencyMs:         120,
	})

	assert.NotEmpty(t, turnID)

	select {
	case <-fake.received:
	case <-time.After(2 * time.Second):
		t.Fatal("document never indexed")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.docs, 1)
	assert.Equal(t, turnID, fake.docs[0].TurnID)
	assert.Equal(t, "merch-1", fake.docs[0].MerchantID)
	assert.Equal(t, "product_search", fake.docs[0].Intent)
	assert.False(t, fake.docs[0].Timestamp.IsZero())
	assert.Contains(t, fake.paths[0], "bot-turns-test")
}

func TestRecord_UniqueTurnIDs(t *testing.T) {
	fake := &fakeES{received: make(chan struct{}, 2)}
	indexer := newFakeIndexer(t, fake)

	id1 := indexer.Record(TurnRecord{SessionID: "sess-1"})
	id2 := indexer.Record(TurnRecord{SessionID: "sess-1"})

	assert.NotEqual(t, id1, id2)
}

func TestRecord_IndexFailureIsSilent(t *testing.T) {
	fake := &fakeES{received: make(chan struct{}, 1), fail: true}
	indexer := newFakeIndexer(t, fake)

	// Must not panic; the caller already moved on.
	turnID := indexer.Record(TurnRecord{SessionID: "sess-1"})
	assert.NotEmpty(t, turnID)
	time.Sleep(100 * time.Millisecond)
}
