package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/repository"
	"github.com/stewardhq/steward/internal/domain/service/stopgate"
)

// StopDecisionRepositoryImpl implements repository.StopDecisionRepository
// with SQLite. Every stop-gate evaluation is recorded with its complete
// rule trace, whatever the outcome.
type StopDecisionRepositoryImpl struct {
	db *sql.DB
}

// NewStopDecisionRepository creates a new SQLite-based stop-decision ledger
func NewStopDecisionRepository(db *sql.DB) repository.StopDecisionRepository {
	return &StopDecisionRepositoryImpl{db: db}
}

// stopEvidence is the persisted evidence shape
type stopEvidence struct {
	JobAttempts   int      `json:"job_attempts"`
	TotalAttempts int      `json:"total_attempts"`
	FailureClass  string   `json:"failure_class"`
	RecentSignals []string `json:"recent_signals"`
	MaxPerJob     int      `json:"max_per_job"`
	MaxTotal      int      `json:"max_total"`
}

// Append records one evaluation
func (r *StopDecisionRepositoryImpl) Append(ctx context.Context, entityID model.EntityID, runID model.RunID, res stopgate.Result) error {
	rulesJSON, err := json.Marshal(res.AppliedRules)
	if err != nil {
		return fmt.Errorf("marshal applied rules: %w", err)
	}
	evidenceJSON, err := json.Marshal(stopEvidence{
		JobAttempts:   res.History.JobAttempts,
		TotalAttempts: res.History.TotalAttempts,
		FailureClass:  res.History.FailureClass,
		RecentSignals: res.History.RecentSignals,
		MaxPerJob:     res.Lawbook.MaxRerunsPerJob,
		MaxTotal:      res.Lawbook.MaxTotalRerunsPerPR,
	})
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	query := `
		INSERT INTO stop_decisions (entity_id, run_id, decision, reason_code, applied_rules, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	evaluatedAt := res.EvaluatedAt
	if evaluatedAt.IsZero() {
		evaluatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, query,
		entityID.String(), runID.String(),
		string(res.Decision), res.ReasonCode,
		string(rulesJSON), string(evidenceJSON),
		evaluatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert stop decision: %w", err)
	}
	return nil
}

// ListByEntity lists recorded evaluations for an entity, newest first
func (r *StopDecisionRepositoryImpl) ListByEntity(ctx context.Context, entityID model.EntityID) ([]stopgate.Result, error) {
	query := `
		SELECT decision, reason_code, applied_rules, evidence, created_at
		FROM stop_decisions
		WHERE entity_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, entityID.String())
	if err != nil {
		return nil, fmt.Errorf("query stop decisions: %w", err)
	}
	defer rows.Close()

	var results []stopgate.Result
	for rows.Next() {
		var decision, reasonCode, rulesJSON, evidenceJSON, createdAtStr string
		if err := rows.Scan(&decision, &reasonCode, &rulesJSON, &evidenceJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan stop decision: %w", err)
		}
		evaluatedAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}

		var rules []stopgate.RuleResult
		if err := json.Unmarshal([]byte(rulesJSON), &rules); err != nil {
			return nil, fmt.Errorf("unmarshal applied rules: %w", err)
		}
		var ev stopEvidence
		if err := json.Unmarshal([]byte(evidenceJSON), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}

		results = append(results, stopgate.Result{
			Decision:     stopgate.Decision(decision),
			ReasonCode:   reasonCode,
			AppliedRules: rules,
			History: stopgate.History{
				JobAttempts:   ev.JobAttempts,
				TotalAttempts: ev.TotalAttempts,
				FailureClass:  ev.FailureClass,
				RecentSignals: ev.RecentSignals,
			},
			Lawbook: stopgate.Lawbook{
				MaxRerunsPerJob:     ev.MaxPerJob,
				MaxTotalRerunsPerPR: ev.MaxTotal,
			},
			EvaluatedAt: evaluatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stop decisions: %w", err)
	}
	return results, nil
}
