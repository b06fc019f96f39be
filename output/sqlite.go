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
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/log"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid"
	"github.com/pkg/errors"
)

// Schema versions, applied in order by the migrator.
var sqliteSchema = []string{
	`create table schema (
	   version integer primary key,
	   timestamp text
	 );
	 create table events (
	   id text primary key,
	   timestamp integer not null,
	   gid integer,
	   sid integer,
	   source text not null
	 );
	 create index events_timestamp_index on events (timestamp);`,

	`create index events_sid_index on events (gid, sid);`,
}

type migrator struct {
	db      *sql.DB
	scripts []string
	now     string
}

// migrate applies every script newer than the version recorded in the
// schema table, each in its own transaction.
func (m *migrator) migrate() error {
	nextVersion := 0

	var currentVersion sql.NullInt64
	err := m.db.QueryRow("select max(version) from schema").Scan(&currentVersion)
	if err == nil && currentVersion.Valid {
		nextVersion = int(currentVersion.Int64) + 1
		log.Debug("Current database schema version: %d", currentVersion.Int64)
	} else {
		log.Debug("Initializing database.")
	}

	for ; nextVersion < len(m.scripts); nextVersion++ {
		log.Info("Updating database to version %d.", nextVersion)

		tx, err := m.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.scripts[nextVersion]); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "schema version %d", nextVersion)
		}
		if _, err := tx.Exec(`insert into schema (version, timestamp)
		                      values ($1, `+m.now+`)`, nextVersion); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

type op struct {
	query string
	args  []interface{}
}

// ulidSource generates event ids ordered by event time.
type ulidSource struct {
	lock    sync.Mutex
	entropy *rand.Rand
}

func newUlidSource() *ulidSource {
	return &ulidSource{
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (u *ulidSource) next(ts time.Time) string {
	u.lock.Lock()
	defer u.lock.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), u.entropy).String()
}

// eventRow is the column values shared by the SQL sinks.
func eventRow(ids *ulidSource, event eve.EveEvent) ([]interface{}, error) {
	encoded, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	ts := event.Timestamp()
	gid, _ := event.GetAlertGeneratorId()
	sid, _ := event.GetAlertSignatureId()
	return []interface{}{ids.next(ts), ts.UnixNano(), gid, sid, string(encoded)}, nil
}

// SqliteSink stores events in a SQLite database. Submitted events are
// inserted in one transaction on Commit.
type SqliteSink struct {
	db    *sql.DB
	ids   *ulidSource
	lock  sync.Mutex
	queue []op
}

func NewSqliteSink(filename string) (*SqliteSink, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	m := &migrator{db: db, scripts: sqliteSchema, now: "datetime('now')"}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s", filename)
	}

	return &SqliteSink{
		db:  db,
		ids: newUlidSource(),
	}, nil
}

func (s *SqliteSink) Submit(event eve.EveEvent) error {
	row, err := eventRow(s.ids, event)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.queue = append(s.queue, op{
		query: "insert into events values ($1, $2, $3, $4, $5)",
		args:  row,
	})
	return nil
}

func (s *SqliteSink) Commit() error {
	s.lock.Lock()
	queue := s.queue
	s.queue = nil
	s.lock.Unlock()

	if len(queue) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Error("%v", err)
		return err
	}

	for _, op := range queue {
		if _, err := tx.Exec(op.query, op.args...); err != nil {
			log.Error("%v", err)
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// CountEvents returns the number of stored events for a rule, or all
// stored events if sid is 0.
func (s *SqliteSink) CountEvents(sid uint32) (int, error) {
	var count int
	var err error
	if sid == 0 {
		err = s.db.QueryRow("select count(*) from events").Scan(&count)
	} else {
		err = s.db.QueryRow("select count(*) from events where sid = $1", sid).Scan(&count)
	}
	return count, err
}

func (s *SqliteSink) Close() error {
	if err := s.Commit(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
