package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// MockClickHouseConn implements driver.Conn for testing
type MockClickHouseConn struct {
	driver.Conn
	PrepareErr error
	SendErr    error

	mu      sync.Mutex
	batches []*MockBatch
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	b := &MockBatch{query: query, sendErr: m.SendErr, mu: &m.mu}
	m.mu.Lock()
	m.batches = append(m.batches, b)
	m.mu.Unlock()
	return b, nil
}

// sentRows returns every row of every successfully sent batch.
func (m *MockClickHouseConn) sentRows() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows [][]interface{}
	for _, b := range m.batches {
		if b.sent {
			rows = append(rows, b.rows...)
		}
	}
	return rows
}

func (m *MockClickHouseConn) sentBatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		if b.sent {
			n++
		}
	}
	return n
}

// MockBatch implements driver.Batch
type MockBatch struct {
	driver.Batch
	mu      *sync.Mutex
	query   string
	rows    [][]interface{}
	sent    bool
	sendErr error
}

func (m *MockBatch) Append(v ...interface{}) error {
	if len(v) != 9 {
		return errors.New("unexpected column count")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) Send() error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = true
	return nil
}

func (m *MockBatch) Rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// MockJob records its runs.
type MockJob struct {
	key   string
	runs  atomic.Int32
	done  chan struct{}
	RunFn func(ctx context.Context)
}

func newMockJob(key string) *MockJob {
	return &MockJob{key: key, done: make(chan struct{}, 16)}
}

func (j *MockJob) Key() string { return j.key }

func (j *MockJob) Run(ctx context.Context) {
	if j.RunFn != nil {
		j.RunFn(ctx)
	}
	j.runs.Add(1)
	j.done <- struct{}{}
}

func (j *MockJob) wait(d time.Duration) bool {
	select {
	case <-j.done:
		return true
	case <-time.After(d):
		return false
	}
}
