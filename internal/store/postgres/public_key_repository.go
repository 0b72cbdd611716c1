// Copyright 2026 The Event Horizon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eventhorizon/horizon/internal/directory"
)

// PublicKeyRepository implements directory.Repository
type PublicKeyRepository struct {
	db *DB
}

// NewPublicKeyRepository creates a new public key repository
func NewPublicKeyRepository(db *DB) *PublicKeyRepository {
	return &PublicKeyRepository{db: db}
}

// Upsert stores a public key, keeping the original creation time on replacement
func (r *PublicKeyRepository) Upsert(ctx context.Context, key *directory.PublicKey) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO public_keys (did, public_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (did) DO UPDATE
		SET public_key = EXCLUDED.public_key, updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`,
		key.DID, key.PublicKey, key.CreatedAt, key.UpdatedAt,
	).Scan(&key.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert public key: %w", err)
	}

	return nil
}

// Get retrieves the public key for a DID
func (r *PublicKeyRepository) Get(ctx context.Context, did string) (*directory.PublicKey, error) {
	var key directory.PublicKey
	err := r.db.pool.QueryRow(ctx, `
		SELECT did, public_key, created_at, updated_at
		FROM public_keys
		WHERE did = $1
	`, did).Scan(&key.DID, &key.PublicKey, &key.CreatedAt, &key.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	return &key, nil
}

// Delete removes the public key for a DID
func (r *PublicKeyRepository) Delete(ctx context.Context, did string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM public_keys WHERE did = $1`, did)
	if err != nil {
		return fmt.Errorf("failed to delete public key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return directory.ErrNotFound
	}
	return nil
}
