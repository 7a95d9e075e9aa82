package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/responses"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/interfaces"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// SyncLedger serialises access to a ledger shared by concurrent requests.
type SyncLedger struct {
	mu     sync.Mutex
	ledger *privacy.Ledger
}

// NewSyncLedger wraps ledger.
func NewSyncLedger(ledger *privacy.Ledger) *SyncLedger {
	return &SyncLedger{ledger: ledger}
}

// RecordQuery records a query under the lock.
func (s *SyncLedger) RecordQuery(query string, epsilon float64) (privacy.BudgetEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.RecordQuery(query, epsilon)
}

// BudgetReport snapshots the ledger under the lock.
func (s *SyncLedger) BudgetReport() *privacy.BudgetReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BudgetReport()
}

// TotalEpsilon returns the cumulative epsilon under the lock.
func (s *SyncLedger) TotalEpsilon() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TotalEpsilon()
}

// BudgetHandler exposes the server's session ledger.
type BudgetHandler struct {
	ledger       *SyncLedger
	store        interfaces.ReportStore
	sessionID    string
	maxBodyBytes int64
	logger       *logrus.Logger
}

// RecordQueryRequest is the body of POST /budget/queries.
type RecordQueryRequest struct {
	Query   string   `json:"query"`
	Epsilon *float64 `json:"epsilon"`
}

// NewBudgetHandler creates a handler over ledger. When store is non-nil
// every accepted entry is also persisted under a per-process session id.
func NewBudgetHandler(ledger *SyncLedger, store interfaces.ReportStore, logger *logrus.Logger) *BudgetHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &BudgetHandler{
		ledger:       ledger,
		store:        store,
		sessionID:    uuid.NewString(),
		maxBodyBytes: constants.MaxUploadSize,
		logger:       logger,
	}
}

// SessionID identifies this process's ledger in the report store.
func (h *BudgetHandler) SessionID() string {
	return h.sessionID
}

// RecordQuery handles POST /api/v1/budget/queries.
func (h *BudgetHandler) RecordQuery(w http.ResponseWriter, r *http.Request) {
	var req RecordQueryRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		responses.Error(w, r, h.logger, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "Malformed request body"))
		return
	}
	if req.Epsilon == nil {
		responses.Error(w, r, h.logger, errors.NewAppError(errors.ErrorTypeValidation, errors.CodeMissingField, "epsilon is required"))
		return
	}

	entry, err := h.ledger.RecordQuery(req.Query, *req.Epsilon)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	h.persist(r.Context(), entry)
	responses.JSON(w, http.StatusCreated, entry)
}

// GetBudget handles GET /api/v1/budget.
func (h *BudgetHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	responses.JSON(w, http.StatusOK, h.ledger.BudgetReport())
}

func (h *BudgetHandler) persist(ctx context.Context, entry privacy.BudgetEntry) {
	if h.store == nil {
		return
	}
	if err := h.store.SaveBudgetEntries(ctx, h.sessionID, []privacy.BudgetEntry{entry}); err != nil {
		h.logger.WithError(err).WithField("session_id", h.sessionID).Warn("Failed to persist budget entry")
	}
}
