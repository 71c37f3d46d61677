// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sqldb

// The schema is written in the subset of SQL shared by Postgres and SQLite.
// Unsigned 64 bit values are stored with their bits reinterpreted as signed,
// and timestamps as unix nanoseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outputs (
		commitment BYTEA PRIMARY KEY,
		key_id BYTEA NOT NULL,
		value BIGINT NOT NULL,
		status SMALLINT NOT NULL,
		height BIGINT NOT NULL,
		lock_height BIGINT NOT NULL,
		is_coinbase BOOLEAN NOT NULL,
		tx_log_id BIGINT NOT NULL,
		lock_id BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outputs_lock_id ON outputs (lock_id)`,
	`CREATE TABLE IF NOT EXISTS tx_log (
		id BIGINT PRIMARY KEY,
		slate_id BYTEA UNIQUE,
		tx_type SMALLINT NOT NULL,
		state SMALLINT NOT NULL,
		participant_id BIGINT NOT NULL,
		creation_ts BIGINT NOT NULL,
		confirmation_ts BIGINT,
		confirmed BOOLEAN NOT NULL,
		amount_credited BIGINT NOT NULL,
		amount_debited BIGINT NOT NULL,
		num_inputs BIGINT NOT NULL,
		num_outputs BIGINT NOT NULL,
		fee BIGINT NOT NULL,
		kernel_excess BYTEA NOT NULL,
		stored_tx BOOLEAN NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contexts (
		slate_id BYTEA NOT NULL,
		participant_id BIGINT NOT NULL,
		data BYTEA NOT NULL,
		PRIMARY KEY (slate_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stored_txs (
		slate_id BYTEA PRIMARY KEY,
		data BYTEA NOT NULL
	)`,
}

const (
	metaVersion    = "version"
	metaTxLogSeq   = "tx_log_seq"
	metaChildIndex = "child_index"
)

const (
	selectOutputSQL = `SELECT commitment, key_id, value, status, height,
		lock_height, is_coinbase, tx_log_id, lock_id FROM outputs`

	upsertOutputSQL = `INSERT INTO outputs (commitment, key_id, value,
		status, height, lock_height, is_coinbase, tx_log_id, lock_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (commitment) DO UPDATE SET key_id = excluded.key_id,
		value = excluded.value, status = excluded.status,
		height = excluded.height, lock_height = excluded.lock_height,
		is_coinbase = excluded.is_coinbase,
		tx_log_id = excluded.tx_log_id, lock_id = excluded.lock_id`

	selectTxLogSQL = `SELECT id, slate_id, tx_type, state, participant_id,
		creation_ts, confirmation_ts, confirmed, amount_credited,
		amount_debited, num_inputs, num_outputs, fee, kernel_excess,
		stored_tx FROM tx_log`

	upsertTxLogSQL = `INSERT INTO tx_log (id, slate_id, tx_type, state,
		participant_id, creation_ts, confirmation_ts, confirmed,
		amount_credited, amount_debited, num_inputs, num_outputs, fee,
		kernel_excess, stored_tx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15)
		ON CONFLICT (id) DO UPDATE SET slate_id = excluded.slate_id,
		tx_type = excluded.tx_type, state = excluded.state,
		participant_id = excluded.participant_id,
		creation_ts = excluded.creation_ts,
		confirmation_ts = excluded.confirmation_ts,
		confirmed = excluded.confirmed,
		amount_credited = excluded.amount_credited,
		amount_debited = excluded.amount_debited,
		num_inputs = excluded.num_inputs,
		num_outputs = excluded.num_outputs, fee = excluded.fee,
		kernel_excess = excluded.kernel_excess,
		stored_tx = excluded.stored_tx`

	selectMetaSQL = `SELECT value FROM meta WHERE name = $1`

	upsertMetaSQL = `INSERT INTO meta (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`

	selectContextSQL = `SELECT data FROM contexts
		WHERE slate_id = $1 AND participant_id = $2`

	upsertContextSQL = `INSERT INTO contexts (slate_id, participant_id,
		data) VALUES ($1, $2, $3)
		ON CONFLICT (slate_id, participant_id) DO UPDATE
		SET data = excluded.data`

	deleteContextSQL = `DELETE FROM contexts
		WHERE slate_id = $1 AND participant_id = $2`

	selectStoredTxSQL = `SELECT data FROM stored_txs WHERE slate_id = $1`

	upsertStoredTxSQL = `INSERT INTO stored_txs (slate_id, data)
		VALUES ($1, $2)
		ON CONFLICT (slate_id) DO UPDATE SET data = excluded.data`
)
