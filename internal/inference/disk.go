// Curator - Human-in-the-Loop Classification Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/curator

package inference

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/curator/internal/classify"
)

// diskTier persists predictions in BadgerDB. Keys are namespaced per model
// ("<modelID>/<itemKey>") so retention can purge a model's entries with a
// single prefix scan.
type diskTier struct {
	db *badger.DB
}

func diskKey(modelID, itemKey string) []byte {
	return []byte(modelID + "/" + itemKey)
}

// get returns the persisted prediction, reporting found=false on a clean
// miss and an error only for actual store failures.
func (d *diskTier) get(modelID, itemKey string) (classify.Prediction, bool, error) {
	var pred classify.Prediction

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diskKey(modelID, itemKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &pred)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return classify.Prediction{}, false, nil
	}
	if err != nil {
		return classify.Prediction{}, false, fmt.Errorf("disk cache get: %w", err)
	}
	return pred, true, nil
}

// putBatch writes a group of predictions in one transaction.
func (d *diskTier) putBatch(modelID string, keys []string, preds []classify.Prediction) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for i, k := range keys {
			data, err := json.Marshal(preds[i])
			if err != nil {
				return fmt.Errorf("encode prediction: %w", err)
			}
			if err := txn.Set(diskKey(modelID, k), data); err != nil {
				return fmt.Errorf("disk cache set: %w", err)
			}
		}
		return nil
	})
}

// purge deletes every entry for a model via prefix scan.
func (d *diskTier) purge(modelID string) error {
	prefix := []byte(modelID + "/")

	return d.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("disk cache purge: %w", err)
			}
		}
		return nil
	})
}
