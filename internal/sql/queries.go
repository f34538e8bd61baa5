package sql

import (
	"embed"
)

// Migrations holds the schema files, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/lock_beneficiary.sql
var LockBeneficiary string

//go:embed queries/approvals_in_year.sql
var ApprovalsInYear string

//go:embed queries/insert_decision.sql
var InsertDecision string

//go:embed queries/insert_payment.sql
var InsertPayment string

//go:embed queries/get_decision.sql
var GetDecision string

//go:embed queries/delete_decision.sql
var DeleteDecision string

//go:embed queries/lock_decision.sql
var LockDecision string

//go:embed queries/share_batch_decisions.sql
var ShareBatchDecisions string

//go:embed queries/get_payment_by_decision.sql
var GetPaymentByDecision string

//go:embed queries/list_promotable.sql
var ListPromotable string

//go:embed queries/stamp_batch.sql
var StampBatch string

//go:embed queries/list_due.sql
var ListDue string

//go:embed queries/list_by_status.sql
var ListByStatus string

//go:embed queries/advance_payments.sql
var AdvancePayments string

//go:embed queries/mark_stuck.sql
var MarkStuck string

//go:embed queries/confirm_batch.sql
var ConfirmBatch string

//go:embed queries/count_batch.sql
var CountBatch string
