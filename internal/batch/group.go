// Package batch derives disbursement batches from payments.
package batch

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/gyeh/brillestotte/internal/apperr"
	"github.com/gyeh/brillestotte/internal/model"
)

// DefaultSoftLimit is the batch size above which an alert is raised. Larger
// batches are still submitted.
const DefaultSoftLimit = 100

// ID derives the batch id for an org and batch date.
func ID(orgID string, date time.Time) string {
	return orgID + "-" + date.Format("20060102")
}

type key struct {
	orgID string
	date  time.Time
}

// Group partitions payments into batches keyed by (org id, batch date).
// Batches are ordered by org id then date and members by creation time then
// id, so the same payments always produce the same batches. Every payment
// must already carry a batch date; a stored batch id that disagrees with the
// derived one is an inconsistency.
func Group(payments []model.Payment) ([]model.Batch, error) {
	groups := make(map[key][]model.Payment)
	for _, p := range payments {
		if p.BatchDate == nil {
			return nil, apperr.Inconsistent("payment has no batch date", p.ID.String())
		}
		k := key{orgID: p.OrgID, date: p.BatchDate.UTC()}
		groups[k] = append(groups[k], p)
	}

	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].orgID != keys[j].orgID {
			return keys[i].orgID < keys[j].orgID
		}
		return keys[i].date.Before(keys[j].date)
	})

	batches := make([]model.Batch, 0, len(keys))
	for _, k := range keys {
		members := groups[k]
		sort.Slice(members, func(i, j int) bool {
			if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
				return members[i].CreatedAt.Before(members[j].CreatedAt)
			}
			return bytes.Compare(members[i].ID[:], members[j].ID[:]) < 0
		})
		b := model.Batch{ID: ID(k.orgID, k.date), OrgID: k.orgID, Date: k.date, Payments: members}
		if err := Check(&b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Check verifies that every member belongs to the batch: same org, same
// batch date, and a stored batch id (if any) equal to the batch's id.
func Check(b *model.Batch) error {
	if len(b.Payments) == 0 {
		return apperr.Inconsistent("batch has no payments", b.ID)
	}
	if want := ID(b.OrgID, b.Date); b.ID != want {
		return apperr.Inconsistent("batch id does not match org and date", fmt.Sprintf("id=%s want=%s", b.ID, want))
	}
	for _, p := range b.Payments {
		if p.OrgID != b.OrgID {
			return apperr.Inconsistent("batch mixes organisations",
				fmt.Sprintf("batch=%s org=%s payment=%s org=%s", b.ID, b.OrgID, p.ID, p.OrgID))
		}
		if p.BatchDate == nil || !p.BatchDate.UTC().Equal(b.Date) {
			return apperr.Inconsistent("payment batch date differs from batch", fmt.Sprintf("batch=%s payment=%s", b.ID, p.ID))
		}
		if p.BatchID != "" && p.BatchID != b.ID {
			return apperr.Inconsistent("stored batch id differs from derived id",
				fmt.Sprintf("payment=%s stored=%s derived=%s", p.ID, p.BatchID, b.ID))
		}
	}
	return nil
}

// Oversized returns the batches with more than limit payments.
func Oversized(batches []model.Batch, limit int) []model.Batch {
	var out []model.Batch
	for _, b := range batches {
		if len(b.Payments) > limit {
			out = append(out, b)
		}
	}
	return out
}
