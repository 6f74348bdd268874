package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/crypto"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

var (
	// ErrRequestNotFound is returned when a request is not found in the database.
	ErrRequestNotFound = errors.New("authorization request not found")
	// ErrIdempotencyKeyExists is returned when a request with the same
	// idempotency key has already been recorded.
	ErrIdempotencyKeyExists = errors.New("idempotency key already used")
)

// RequestRepository handles persistence for AuthorizationRequest.
type RequestRepository struct {
	db            *pgxpool.Pool
	encryptionKey []byte
}

func NewRequestRepository(db *DB) *RequestRepository {
	return &RequestRepository{db: db.pool}
}

// WithFieldEncryption enables at-rest AES-256-GCM encryption of the
// cryptogram/pinData/threeDsData fields. key must be 32 bytes; a nil or
// empty key leaves those fields stored as the caller passed them (used in
// tests that have no key material configured).
func (r *RequestRepository) WithFieldEncryption(key []byte) *RequestRepository {
	r.encryptionKey = key
	return r
}

func (r *RequestRepository) encryptField(plaintext string) (string, error) {
	if len(r.encryptionKey) == 0 || plaintext == "" {
		return plaintext, nil
	}
	return crypto.Encrypt(plaintext, r.encryptionKey)
}

func (r *RequestRepository) decryptField(stored string) (string, error) {
	if len(r.encryptionKey) == 0 || stored == "" {
		return stored, nil
	}
	return crypto.Decrypt(stored, r.encryptionKey)
}

// Create inserts a new authorization request. Returns ErrIdempotencyKeyExists
// if idempotencyKey is non-empty and already recorded.
func (r *RequestRepository) Create(ctx context.Context, req *domain.AuthorizationRequest, idempotencyKey string) error {
	query := `INSERT INTO authorization_requests (
		request_id, masked_pan, pan_hash, token, expiry_date, merchant_id, merchant_name,
		channel, mcc, country_code, transaction_type, amount, currency, timestamp,
		cryptogram, pin_data, three_ds_data, processed, processed_at, idempotency_key
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19, NULLIF($20, ''))`

	cryptogram, err := r.encryptField(req.Cryptogram)
	if err != nil {
		return fmt.Errorf("failed to encrypt cryptogram: %w", err)
	}
	pinData, err := r.encryptField(req.PINData)
	if err != nil {
		return fmt.Errorf("failed to encrypt pinData: %w", err)
	}
	threeDSData, err := r.encryptField(req.ThreeDSData)
	if err != nil {
		return fmt.Errorf("failed to encrypt threeDsData: %w", err)
	}

	_, err = r.db.Exec(ctx, query,
		req.RequestID, req.MaskedPAN, req.PANHash, req.Token, req.ExpiryDate,
		req.MerchantID, req.MerchantName, string(req.Channel), req.MCC, req.CountryCode,
		string(req.TransactionType), req.Amount, req.Currency, req.Timestamp,
		cryptogram, pinData, threeDSData, req.Processed, req.ProcessedAt,
		idempotencyKey,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "idx_authorization_requests_idempotency_key" {
				return ErrIdempotencyKeyExists
			}
		}
		return fmt.Errorf("failed to create authorization request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by its RequestID.
func (r *RequestRepository) GetByID(ctx context.Context, requestID int64) (*domain.AuthorizationRequest, error) {
	query := `SELECT
		request_id, masked_pan, pan_hash, token, expiry_date, merchant_id, merchant_name,
		channel, mcc, country_code, transaction_type, amount, currency, timestamp,
		cryptogram, pin_data, three_ds_data, processed, processed_at
	FROM authorization_requests WHERE request_id = $1`

	var req domain.AuthorizationRequest
	var channel, txnType string

	err := r.db.QueryRow(ctx, query, requestID).Scan(
		&req.RequestID, &req.MaskedPAN, &req.PANHash, &req.Token, &req.ExpiryDate,
		&req.MerchantID, &req.MerchantName, &channel, &req.MCC, &req.CountryCode,
		&txnType, &req.Amount, &req.Currency, &req.Timestamp,
		&req.Cryptogram, &req.PINData, &req.ThreeDSData, &req.Processed, &req.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get authorization request %d: %w", requestID, err)
	}
	req.Channel = domain.Channel(channel)
	req.TransactionType = domain.TransactionType(txnType)

	if req.Cryptogram, err = r.decryptField(req.Cryptogram); err != nil {
		return nil, fmt.Errorf("failed to decrypt cryptogram for request %d: %w", requestID, err)
	}
	if req.PINData, err = r.decryptField(req.PINData); err != nil {
		return nil, fmt.Errorf("failed to decrypt pinData for request %d: %w", requestID, err)
	}
	if req.ThreeDSData, err = r.decryptField(req.ThreeDSData); err != nil {
		return nil, fmt.Errorf("failed to decrypt threeDsData for request %d: %w", requestID, err)
	}
	return &req, nil
}

// FindByIdempotencyKey resolves a previously-recorded request by its
// idempotency key, if one exists.
func (r *RequestRepository) FindByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.AuthorizationRequest, error) {
	var requestID int64
	err := r.db.QueryRow(ctx, `SELECT request_id FROM authorization_requests WHERE idempotency_key = $1`, idempotencyKey).Scan(&requestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return r.GetByID(ctx, requestID)
}

// MarkProcessed flips the processed flag once a terminal decision has been
// persisted for the request.
func (r *RequestRepository) MarkProcessed(ctx context.Context, requestID int64, processedAt time.Time) error {
	commandTag, err := r.db.Exec(ctx, `UPDATE authorization_requests SET processed = TRUE, processed_at = $2 WHERE request_id = $1`, requestID, processedAt)
	if err != nil {
		return fmt.Errorf("failed to mark request %d processed: %w", requestID, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}
