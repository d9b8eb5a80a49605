/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists beneficiaries, their payout destinations, their distribution
  rules, and the disbursements paid out by payroll runs. The allocator never
  sees this package: callers load an AllocationConfig snapshot here and pass
  it in by value.

INTERFACES IMPLEMENTED:
  disbursement.ConfigStore: Configuration snapshots per beneficiary
  disbursement.RunStore:    Disbursement records (append-only)

KEY TABLES:
  beneficiaries:       Payees
  destinations:        Payout targets; seq (autoincrement) is the creation order
                       and therefore the order of implicit zero destinations
  distribution_rules:  At most one rule per destination (primary key)
  disbursements:       One row per paid payslip; payslip_ref is UNIQUE
  disbursement_lines:  One row per destination of a disbursement

APPEND-ONLY ENFORCEMENT:
  disbursements and disbursement_lines are only ever inserted. Rules are
  configuration and are replaced wholesale, atomically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection since every new connection would see an empty database.

USAGE:
  store, err := sqlite.New("./data/disbursement.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  cfg, err := store.LoadConfig(ctx, "emp-001")
  result, err := disbursement.Allocate(net, cfg)

SEE ALSO:
  - disbursement/store.go: Interface definitions
  - disbursement/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/disbursement-engine/disbursement"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS beneficiaries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL
	);

	-- seq is the creation order of destinations
	CREATE TABLE IF NOT EXISTS destinations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		beneficiary_id TEXT NOT NULL REFERENCES beneficiaries(id) ON DELETE CASCADE,
		label TEXT,
		account_ref TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(beneficiary_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_destinations_beneficiary
		ON destinations(beneficiary_id, seq);

	CREATE TABLE IF NOT EXISTS distribution_rules (
		beneficiary_id TEXT NOT NULL,
		destination_id TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		amount_is_percentage BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (beneficiary_id, destination_id),
		FOREIGN KEY (beneficiary_id, destination_id)
			REFERENCES destinations(beneficiary_id, id) ON DELETE CASCADE
	);

	-- Disbursements (append-only)
	CREATE TABLE IF NOT EXISTS disbursements (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		beneficiary_id TEXT NOT NULL,
		payslip_ref TEXT NOT NULL UNIQUE,
		net_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_disbursements_beneficiary
		ON disbursements(beneficiary_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_disbursements_run
		ON disbursements(run_id);

	CREATE TABLE IF NOT EXISTS disbursement_lines (
		disbursement_id TEXT NOT NULL REFERENCES disbursements(id),
		position INTEGER NOT NULL,
		destination_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		PRIMARY KEY (disbursement_id, position)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BENEFICIARY STORE
// =============================================================================

// Beneficiary represents a payee record.
type Beneficiary struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// SaveBeneficiary creates or updates a beneficiary.
func (s *Store) SaveBeneficiary(ctx context.Context, b Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO beneficiaries (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.Name, b.Email,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetBeneficiary retrieves a beneficiary by ID. Returns nil, nil when absent.
func (s *Store) GetBeneficiary(ctx context.Context, id string) (*Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getBeneficiary(ctx, id)
}

func (s *Store) getBeneficiary(ctx context.Context, id string) (*Beneficiary, error) {
	var b Beneficiary
	var email sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, created_at FROM beneficiaries WHERE id = ?",
		id,
	).Scan(&b.ID, &b.Name, &email, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	b.Email = email.String
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

// ListBeneficiaries returns all beneficiaries ordered by name.
func (s *Store) ListBeneficiaries(ctx context.Context) ([]Beneficiary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, created_at FROM beneficiaries ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beneficiaries []Beneficiary
	for rows.Next() {
		var b Beneficiary
		var email sql.NullString
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &email, &createdAt); err != nil {
			return nil, err
		}
		b.Email = email.String
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		beneficiaries = append(beneficiaries, b)
	}
	return beneficiaries, rows.Err()
}

// =============================================================================
// DESTINATION STORE
// =============================================================================

// Destination is a payout target owned by a beneficiary.
type Destination struct {
	ID            string
	BeneficiaryID string
	Label         string
	AccountRef    string
	CreatedAt     time.Time
}

// AddDestination registers a destination. Destinations are immutable once
// added; adding the same id twice for a beneficiary is an error.
func (s *Store) AddDestination(ctx context.Context, d Destination) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO destinations (id, beneficiary_id, label, account_ref, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.BeneficiaryID, d.Label, d.AccountRef,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("destination %s: %w", d.ID, disbursement.ErrDuplicateDestination)
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("beneficiary %s: %w", d.BeneficiaryID, disbursement.ErrBeneficiaryNotFound)
		}
		return fmt.Errorf("failed to add destination: %w", err)
	}
	return nil
}

// ListDestinations returns a beneficiary's destinations in creation order.
func (s *Store) ListDestinations(ctx context.Context, beneficiaryID string) ([]Destination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listDestinations(ctx, beneficiaryID)
}

func (s *Store) listDestinations(ctx context.Context, beneficiaryID string) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, beneficiary_id, label, account_ref, created_at
		FROM destinations
		WHERE beneficiary_id = ?
		ORDER BY seq ASC
	`, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query destinations: %w", err)
	}
	defer rows.Close()

	var destinations []Destination
	for rows.Next() {
		var d Destination
		var label, accountRef sql.NullString
		var createdAt string
		if err := rows.Scan(&d.ID, &d.BeneficiaryID, &label, &accountRef, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		d.Label = label.String
		d.AccountRef = accountRef.String
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		destinations = append(destinations, d)
	}
	return destinations, rows.Err()
}

// =============================================================================
// RULE STORE
// =============================================================================

// ReplaceRules atomically swaps a beneficiary's distribution rules.
// An empty slice clears the configuration.
func (s *Store) ReplaceRules(ctx context.Context, beneficiaryID string, rules []disbursement.AllocationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM distribution_rules WHERE beneficiary_id = ?", beneficiaryID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rules {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO distribution_rules
			(beneficiary_id, destination_id, sequence, amount, amount_is_percentage, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, beneficiaryID, string(r.Destination), r.Sequence, r.Value.String(),
			r.Kind == disbursement.KindPercentage, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("destination %s: %w", r.Destination, disbursement.ErrDuplicateDestination)
			}
			if isForeignKeyError(err) {
				return fmt.Errorf("destination %s: %w", r.Destination, disbursement.ErrUnknownDestination)
			}
			return fmt.Errorf("failed to save rule: %w", err)
		}
	}

	return sqlTx.Commit()
}

// ListRules returns a beneficiary's rules ordered by sequence, then destination.
func (s *Store) ListRules(ctx context.Context, beneficiaryID string) ([]disbursement.AllocationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listRules(ctx, beneficiaryID)
}

func (s *Store) listRules(ctx context.Context, beneficiaryID string) ([]disbursement.AllocationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT destination_id, sequence, amount, amount_is_percentage
		FROM distribution_rules
		WHERE beneficiary_id = ?
		ORDER BY sequence ASC, destination_id ASC
	`, beneficiaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []disbursement.AllocationRule
	for rows.Next() {
		var (
			dest         string
			sequence     int
			amount       string
			isPercentage bool
		)
		if err := rows.Scan(&dest, &sequence, &amount, &isPercentage); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q for %s: %w", amount, dest, err)
		}
		kind := disbursement.KindFixed
		if isPercentage {
			kind = disbursement.KindPercentage
		}
		rules = append(rules, disbursement.AllocationRule{
			Destination: disbursement.DestinationID(dest),
			Sequence:    sequence,
			Value:       value,
			Kind:        kind,
		})
	}
	return rules, rows.Err()
}

// LoadConfig implements disbursement.ConfigStore.
func (s *Store) LoadConfig(ctx context.Context, beneficiaryID disbursement.BeneficiaryID) (disbursement.AllocationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := s.getBeneficiary(ctx, string(beneficiaryID))
	if err != nil {
		return disbursement.AllocationConfig{}, err
	}
	if b == nil {
		return disbursement.AllocationConfig{}, disbursement.ErrBeneficiaryNotFound
	}

	destinations, err := s.listDestinations(ctx, string(beneficiaryID))
	if err != nil {
		return disbursement.AllocationConfig{}, err
	}
	rules, err := s.listRules(ctx, string(beneficiaryID))
	if err != nil {
		return disbursement.AllocationConfig{}, err
	}

	cfg := disbursement.AllocationConfig{
		Destinations: make([]disbursement.DestinationID, len(destinations)),
		Rules:        rules,
	}
	for i, d := range destinations {
		cfg.Destinations[i] = disbursement.DestinationID(d.ID)
	}
	return cfg, nil
}

// =============================================================================
// RUN STORE (disbursement.RunStore interface)
// =============================================================================

// SaveDisbursement writes a disbursement and its lines atomically.
func (s *Store) SaveDisbursement(ctx context.Context, d disbursement.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO disbursements (id, run_id, beneficiary_id, payslip_ref, net_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.RunID, string(d.BeneficiaryID), d.PayslipRef,
		d.NetAmount.String(), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return disbursement.ErrDuplicateDisbursement
		}
		return fmt.Errorf("failed to save disbursement: %w", err)
	}

	for i, line := range d.Lines {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO disbursement_lines (disbursement_id, position, destination_id, kind, sequence, amount)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.ID, i, string(line.Destination), string(line.Kind), line.Sequence, line.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to save disbursement line: %w", err)
		}
	}

	return sqlTx.Commit()
}

// ListDisbursements returns a beneficiary's disbursements with lines, oldest first.
func (s *Store) ListDisbursements(ctx context.Context, beneficiaryID disbursement.BeneficiaryID) ([]disbursement.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, beneficiary_id, payslip_ref, net_amount, created_at
		FROM disbursements
		WHERE beneficiary_id = ?
		ORDER BY created_at ASC, id ASC
	`, string(beneficiaryID))
	if err != nil {
		return nil, fmt.Errorf("failed to query disbursements: %w", err)
	}

	var result []disbursement.Disbursement
	for rows.Next() {
		var (
			d          disbursement.Disbursement
			benID      string
			payslipRef string
			net        string
			createdAt  string
		)
		if err := rows.Scan(&d.ID, &d.RunID, &benID, &payslipRef, &net, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan disbursement: %w", err)
		}
		d.BeneficiaryID = disbursement.BeneficiaryID(benID)
		d.PayslipRef = payslipRef
		d.NetAmount, _ = decimal.NewFromString(net)
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Lines are loaded after the outer cursor is closed; ":memory:" stores
	// have a single connection.
	for i := range result {
		lines, err := s.loadLines(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Lines = lines
	}
	return result, nil
}

func (s *Store) loadLines(ctx context.Context, disbursementID string) ([]disbursement.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT destination_id, kind, sequence, amount
		FROM disbursement_lines
		WHERE disbursement_id = ?
		ORDER BY position ASC
	`, disbursementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query disbursement lines: %w", err)
	}
	defer rows.Close()

	var lines []disbursement.Allocation
	for rows.Next() {
		var (
			line   disbursement.Allocation
			dest   string
			kind   string
			amount string
		)
		if err := rows.Scan(&dest, &kind, &line.Sequence, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan disbursement line: %w", err)
		}
		line.Destination = disbursement.DestinationID(dest)
		line.Kind = disbursement.Kind(kind)
		line.Amount, _ = decimal.NewFromString(amount)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"disbursement_lines", "disbursements", "distribution_rules", "destinations", "beneficiaries"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// compile-time interface checks
var (
	_ disbursement.ConfigStore = (*Store)(nil)
	_ disbursement.RunStore    = (*Store)(nil)
)
