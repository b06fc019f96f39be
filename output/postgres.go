/* Copyright (c) 2016 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package output

import (
	"database/sql"
	"sync"

	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/log"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

var postgresSchema = []string{
	`create table schema (
	   version integer primary key,
	   timestamp timestamptz
	 );
	 create table events (
	   id text primary key,
	   timestamp bigint not null,
	   gid bigint,
	   sid bigint,
	   source jsonb not null
	 );
	 create index events_timestamp_index on events (timestamp);`,

	`create index events_sid_index on events (gid, sid);`,
}

// PostgresSink stores events in PostgreSQL with the same layout as
// SqliteSink. The transaction is opened on the first Submit after a
// Commit.
type PostgresSink struct {
	db   *sql.DB
	ids  *ulidSource
	lock sync.Mutex
	tx   *sql.Tx
}

func NewPostgresSink(dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("postgres output requires a dsn")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	var pgVersion string
	if err := db.QueryRow("select version()").Scan(&pgVersion); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}
	log.Info("Connected to PostgreSQL version %s.", pgVersion)

	// The schema table may not exist yet, which the migrator reads as
	// version -1.
	m := &migrator{db: db, scripts: postgresSchema, now: "now()"}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresSink{
		db:  db,
		ids: newUlidSource(),
	}, nil
}

func (s *PostgresSink) Submit(event eve.EveEvent) error {
	row, err := eventRow(s.ids, event)
	if err != nil {
		log.Error("Failed to marshal event to JSON: %v", err)
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.tx == nil {
		if s.tx, err = s.db.Begin(); err != nil {
			return err
		}
	}

	_, err = s.tx.Exec(`insert into events (id, timestamp, gid, sid, source)
	    values ($1, $2, $3, $4, $5)`, row...)
	return err
}

func (s *PostgresSink) Commit() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *PostgresSink) Close() error {
	if err := s.Commit(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
