package repositories

import (
	stderrors "errors"

	"github.com/dgraph-io/badger/v4"
)

// maxCommitRetries bounds the retry loop on transaction conflicts.
// Badger detects conflicting concurrent commits (serializable snapshot
// isolation); the losing transaction reruns against the winner's state.
const maxCommitRetries = 5

// update runs fn in a read-write transaction, retrying on commit conflicts.
// This is what makes find-or-create operations atomic under concurrent
// calls: the loser of a race re-reads and observes the winner's row.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxCommitRetries; i++ {
		err = db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
