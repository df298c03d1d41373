// Package uploadlog implements SPEC_FULL.md domain stack item 2: a durable
// record of completed uploads so an operator can audit or replay after a
// crash mid multi-part session. Backed by github.com/tidwall/buntdb
// (teacher dep), the same class of embedded KV store aistore's control
// plane leans on for small bookkeeping that doesn't warrant a real
// database, mirrored here at file-server scale.
/*
 * Copyright (c) 2026, webs3rv authors. All rights reserved.
 */
package uploadlog

import (
	"fmt"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/nvaistore/webs3rv/internal/cos"
)

// Record is one completed upload.
type Record struct {
	FinalPath string
	Size      int64
	Checksum  string
	When      time.Time
}

// Ledger wraps one buntdb file. Not safe for concurrent goroutine use, but
// this server has only one goroutine driving it (the dispatcher loop).
type Ledger struct {
	db *buntdb.DB
}

func Open(path string) (*Ledger, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cos.Wrapf(err, "uploadlog: open %s", path)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Record stores rec keyed by its final path, overwriting any prior entry
// for the same path (a re-upload replaces its own ledger row).
func (l *Ledger) Record(rec Record) error {
	value := fmt.Sprintf("%d|%s|%d", rec.Size, rec.Checksum, rec.When.Unix())
	return l.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(rec.FinalPath, value, nil)
		return err
	})
}

// Lookup returns the ledger's record of path, if any.
func (l *Ledger) Lookup(path string) (value string, found bool, err error) {
	err = l.db.View(func(tx *buntdb.Tx) error {
		v, getErr := tx.Get(path)
		if getErr == buntdb.ErrNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		value = v
		found = true
		return nil
	})
	return value, found, err
}
