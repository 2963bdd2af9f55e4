package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cynic/internal/judge"
	"cynic/internal/logging"
)

// AuditRecord is the flattened JSONL row persisted per judgment. It
// deliberately drops the full contributing-vote payloads; the vote map
// and consensus summary are enough for replay and review.
type AuditRecord struct {
	JudgmentID string             `json:"judgment_id"`
	CellID     string             `json:"cell_id"`
	Domain     string             `json:"domain"`
	Analysis   string             `json:"analysis"`
	Tier       int                `json:"tier"`
	Score      float64            `json:"score"`
	Verdict    string             `json:"verdict"`
	Confidence float64            `json:"confidence"`
	Consensus  bool               `json:"consensus"`
	Votes      map[string]float64 `json:"votes,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Residual   float64            `json:"residual"`
	CostUSD    float64            `json:"cost_usd"`
	DurationMS int64              `json:"duration_ms"`
	CreatedAt  time.Time          `json:"created_at"`
}

// AuditLog appends judgments to a JSONL file. Appends are best-effort
// from the caller's point of view: a failed write is logged, never
// allowed to fail a cycle.
type AuditLog struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	log  logging.Logger
}

// OpenAuditLog opens (or creates) the audit file for appending.
func OpenAuditLog(path string, log logging.Logger) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
		log:  logging.OrNop(log),
	}, nil
}

// Append writes one judgment row and flushes it.
func (a *AuditLog) Append(j judge.Judgment) error {
	rec := AuditRecord{
		JudgmentID: j.ID,
		CellID:     j.Cell.ID,
		Domain:     string(j.Cell.Domain),
		Analysis:   string(j.Cell.Analysis),
		Tier:       j.Cell.Tier,
		Score:      j.Score,
		Verdict:    string(j.Verdict),
		Confidence: j.Confidence,
		Consensus:  j.Consensus.Consensus,
		Votes:      j.Votes,
		Reason:     j.Consensus.Reason,
		Residual:   j.ResidualVariance,
		CostUSD:    j.CostUSD,
		DurationMS: j.Duration.Milliseconds(),
		CreatedAt:  j.CreatedAt,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return a.w.Flush()
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
