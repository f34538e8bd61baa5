package model

// BatchFileRow is one payment line in a batch outbox Parquet file.
// Amounts are whole kroner.
type BatchFileRow struct {
	BatchID      string `parquet:"batch_id"`
	OrgID        string `parquet:"org_id"`
	BatchDate    string `parquet:"batch_date"`
	PaymentID    string `parquet:"payment_id"`
	DecisionID   string `parquet:"decision_id"`
	Amount       int64  `parquet:"amount"`
	Resubmission bool   `parquet:"resubmission"`
}

// BatchFileColumns are the columns every outbox file must carry.
func BatchFileColumns() []string {
	return []string{"batch_id", "org_id", "batch_date", "payment_id", "decision_id", "amount", "resubmission"}
}

// BatchFileRows flattens a batch into outbox rows.
func BatchFileRows(b *Batch, resubmission bool) []BatchFileRow {
	rows := make([]BatchFileRow, len(b.Payments))
	for i, p := range b.Payments {
		rows[i] = BatchFileRow{
			BatchID:      b.ID,
			OrgID:        b.OrgID,
			BatchDate:    b.Date.Format("2006-01-02"),
			PaymentID:    p.ID.String(),
			DecisionID:   p.DecisionID.String(),
			Amount:       p.Amount,
			Resubmission: resubmission,
		}
	}
	return rows
}
