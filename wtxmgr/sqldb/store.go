// Copyright (c) 2025 The forest-wallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sqldb implements the wallet store on a SQL database. Postgres
// (through pgx) and SQLite (through modernc) are supported.
package sqldb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forestblock/forest-wallet/commit"
	"github.com/forestblock/forest-wallet/core"
	"github.com/forestblock/forest-wallet/participant"
	"github.com/forestblock/forest-wallet/slate"
	"github.com/forestblock/forest-wallet/werr"
	"github.com/forestblock/forest-wallet/wtxmgr"
	"github.com/google/uuid"

	// Register the pgx driver under name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Register SQLite driver under name "sqlite".
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Store is a wtxmgr.DB backed by database/sql.
type Store struct {
	db *sql.DB
}

var _ wtxmgr.DB = (*Store)(nil)

// Open connects to the database named by dsn and prepares the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, werr.Store("opening database", err)
	}

	// SQLite serializes writers; a single connection avoids busy errors
	// between concurrent transactions.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New uses an open database, creating the schema if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, werr.Store("pinging database", err)
	}

	s := &Store{db: db}
	err := s.Update(ctx, func(tx wtxmgr.ReadWriteTx) error {
		t := tx.(*sqlTx)
		for _, stmt := range schema {
			if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
		}

		version, ok, err := t.meta(metaVersion)
		switch {
		case err != nil:
			return err
		case !ok:
			return t.setMeta(metaVersion, wtxmgr.LatestVersion)
		case version != wtxmgr.LatestVersion:
			return fmt.Errorf("unsupported store version %d", version)
		}
		return nil
	})
	if err != nil {
		return nil, werr.Store("initializing store", err)
	}
	return s, nil
}

// View implements wtxmgr.DB. The transaction is always rolled back.
func (s *Store) View(ctx context.Context,
	f func(wtxmgr.ReadTx) error) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return werr.Store("beginning transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	return f(&sqlTx{ctx: ctx, tx: tx})
}

// Update implements wtxmgr.DB.
func (s *Store) Update(ctx context.Context,
	f func(wtxmgr.ReadWriteTx) error) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return werr.Store("beginning transaction", err)
	}

	if err := f(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorf("Rollback failed: %v", rbErr)
		}
		return err
	}
	return werr.Store("committing transaction", tx.Commit())
}

// Close implements wtxmgr.DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// sqlTx implements wtxmgr.ReadWriteTx. Row sets are read to completion
// before callbacks run so callbacks may issue further statements.
type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTx) meta(name string) (int64, bool, error) {
	var v int64
	err := t.tx.QueryRowContext(t.ctx, selectMetaSQL, name).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return v, true, nil
}

func (t *sqlTx) setMeta(name string, v int64) error {
	_, err := t.tx.ExecContext(t.ctx, upsertMetaSQL, name, v)
	return err
}

// nextMeta increments a counter and returns its new value.
func (t *sqlTx) nextMeta(name string) (int64, error) {
	v, _, err := t.meta(name)
	if err != nil {
		return 0, err
	}
	v++
	return v, t.setMeta(name, v)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutput(row scanner) (*wtxmgr.OutputRecord, error) {
	var (
		o                         wtxmgr.OutputRecord
		c, keyID                  []byte
		value, height, lockHeight int64
		status                    int16
		txLogID, lockID           int64
	)
	err := row.Scan(&c, &keyID, &value, &status, &height, &lockHeight,
		&o.IsCoinbase, &txLogID, &lockID)
	if err != nil {
		return nil, err
	}
	if len(c) != len(o.Commit) || len(keyID) != len(o.KeyID) {
		return nil, fmt.Errorf("output row has bad key sizes (%d, %d)",
			len(c), len(keyID))
	}
	copy(o.Commit[:], c)
	copy(o.KeyID[:], keyID)
	o.Value = uint64(value)
	o.Status = wtxmgr.OutputStatus(status)
	o.Height = uint64(height)
	o.LockHeight = uint64(lockHeight)
	o.TxLogID = uint32(txLogID)
	o.LockID = uint32(lockID)
	return &o, nil
}

func (t *sqlTx) FetchOutput(c commit.Commitment) (*wtxmgr.OutputRecord,
	error) {

	row := t.tx.QueryRowContext(
		t.ctx, selectOutputSQL+` WHERE commitment = $1`, c[:],
	)
	o, err := scanOutput(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (t *sqlTx) ForEachOutput(f func(*wtxmgr.OutputRecord) error) error {
	rows, err := t.tx.QueryContext(
		t.ctx, selectOutputSQL+` ORDER BY commitment`,
	)
	if err != nil {
		return err
	}

	var outputs []*wtxmgr.OutputRecord
	for rows.Next() {
		o, err := scanOutput(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		outputs = append(outputs, o)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range outputs {
		if err := f(o); err != nil {
			return err
		}
	}
	return nil
}

func scanTxLog(row scanner) (*wtxmgr.TxLogEntry, error) {
	var (
		e                          wtxmgr.TxLogEntry
		id, participantID, created int64
		slateID, excess            []byte
		txType, state              int16
		confirmedTS                sql.NullInt64
		credited, debited, fee     int64
		numInputs, numOutputs      int64
	)
	err := row.Scan(&id, &slateID, &txType, &state, &participantID,
		&created, &confirmedTS, &e.Confirmed, &credited, &debited,
		&numInputs, &numOutputs, &fee, &excess, &e.StoredTx)
	if err != nil {
		return nil, err
	}

	e.ID = uint32(id)
	if slateID != nil {
		if e.SlateID, err = uuid.FromBytes(slateID); err != nil {
			return nil, err
		}
	}
	e.Type = wtxmgr.TxLogType(txType)
	e.State = slate.State(state)
	e.ParticipantID = uint64(participantID)
	e.CreationTS = time.Unix(0, created).UTC()
	if confirmedTS.Valid {
		ts := time.Unix(0, confirmedTS.Int64).UTC()
		e.ConfirmationTS = &ts
	}
	e.AmountCredited = uint64(credited)
	e.AmountDebited = uint64(debited)
	e.NumInputs = uint32(numInputs)
	e.NumOutputs = uint32(numOutputs)
	e.Fee = uint64(fee)
	if len(excess) != len(e.KernelExcess) {
		return nil, fmt.Errorf("log entry %d has a %d byte excess", id,
			len(excess))
	}
	copy(e.KernelExcess[:], excess)
	return &e, nil
}

func (t *sqlTx) fetchTxLog(where string, arg any) (*wtxmgr.TxLogEntry,
	error) {

	row := t.tx.QueryRowContext(t.ctx, selectTxLogSQL+where, arg)
	e, err := scanTxLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (t *sqlTx) FetchTxLogEntry(id uint32) (*wtxmgr.TxLogEntry, error) {
	return t.fetchTxLog(` WHERE id = $1`, int64(id))
}

func (t *sqlTx) FetchTxLogEntryBySlate(
	slateID uuid.UUID) (*wtxmgr.TxLogEntry, error) {

	return t.fetchTxLog(` WHERE slate_id = $1`, slateID[:])
}

func (t *sqlTx) ForEachTxLogEntry(f func(*wtxmgr.TxLogEntry) error) error {
	rows, err := t.tx.QueryContext(t.ctx, selectTxLogSQL+` ORDER BY id`)
	if err != nil {
		return err
	}

	var entries []*wtxmgr.TxLogEntry
	for rows.Next() {
		e, err := scanTxLog(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		if err := f(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) FetchContext(slateID uuid.UUID,
	participantID uint64) (*participant.Context, error) {

	var data []byte
	err := t.tx.QueryRowContext(
		t.ctx, selectContextSQL, slateID[:], int64(participantID),
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return participant.Deserialize(data)
}

func (t *sqlTx) FetchStoredTx(slateID uuid.UUID) (*core.Transaction,
	error) {

	var data []byte
	err := t.tx.QueryRowContext(
		t.ctx, selectStoredTxSQL, slateID[:],
	).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}

	var tx core.Transaction
	if err := tx.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (t *sqlTx) LastChildIndex() (uint32, error) {
	v, _, err := t.meta(metaChildIndex)
	return uint32(v), err
}

func (t *sqlTx) PutOutput(o *wtxmgr.OutputRecord) error {
	_, err := t.tx.ExecContext(t.ctx, upsertOutputSQL,
		o.Commit[:], o.KeyID[:], int64(o.Value), int16(o.Status),
		int64(o.Height), int64(o.LockHeight), o.IsCoinbase,
		int64(o.TxLogID), int64(o.LockID),
	)
	return err
}

func (t *sqlTx) DeleteOutput(c commit.Commitment) error {
	_, err := t.tx.ExecContext(
		t.ctx, `DELETE FROM outputs WHERE commitment = $1`, c[:],
	)
	return err
}

func (t *sqlTx) NextTxLogID() (uint32, error) {
	v, err := t.nextMeta(metaTxLogSeq)
	return uint32(v), err
}

func (t *sqlTx) PutTxLogEntry(e *wtxmgr.TxLogEntry) error {
	if e.ID == 0 {
		return errors.New("log entry has no id")
	}

	var slateID any
	if e.SlateID != uuid.Nil {
		slateID = e.SlateID[:]

		existing, err := t.FetchTxLogEntryBySlate(e.SlateID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != e.ID {
			return werr.Newf(werr.ErrDuplicateNegotiation,
				"slate %v already logged as entry %d", e.SlateID,
				existing.ID)
		}
	}

	var confirmedTS sql.NullInt64
	if e.ConfirmationTS != nil {
		confirmedTS = sql.NullInt64{
			Int64: e.ConfirmationTS.UnixNano(),
			Valid: true,
		}
	}

	_, err := t.tx.ExecContext(t.ctx, upsertTxLogSQL,
		int64(e.ID), slateID, int16(e.Type), int16(e.State),
		int64(e.ParticipantID), e.CreationTS.UnixNano(), confirmedTS,
		e.Confirmed, int64(e.AmountCredited), int64(e.AmountDebited),
		int64(e.NumInputs), int64(e.NumOutputs), int64(e.Fee),
		e.KernelExcess[:], e.StoredTx,
	)
	return err
}

func (t *sqlTx) NextChildIndex() (uint32, error) {
	v, err := t.nextMeta(metaChildIndex)
	return uint32(v), err
}

func (t *sqlTx) PutContext(ctx *participant.Context) error {
	data, err := ctx.Serialize()
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, upsertContextSQL,
		ctx.SlateID[:], int64(ctx.ParticipantID), data,
	)
	return err
}

func (t *sqlTx) DeleteContext(slateID uuid.UUID,
	participantID uint64) error {

	_, err := t.tx.ExecContext(t.ctx, deleteContextSQL,
		slateID[:], int64(participantID),
	)
	return err
}

func (t *sqlTx) PutStoredTx(slateID uuid.UUID, tx *core.Transaction) error {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, upsertStoredTxSQL,
		slateID[:], buf.Bytes(),
	)
	return err
}
