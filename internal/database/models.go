package database

import (
	"time"

	"gorm.io/gorm"
)

// Sides a case can be represented on
const (
	SidePlaintiff = "plaintiff"
	SideDefendant = "defendant"
)

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusError   = "error"
)

// Case is one legal matter with an open response deadline.
// Identity is the CNJ docket number; list extraction creates and refreshes
// the list-derived columns, representation backfill sets the represented_*
// columns exactly once.
type Case struct {
	gorm.Model
	Docket          string     `json:"docket" gorm:"uniqueIndex"`
	CourtCode       string     `json:"court_code"`
	PlaintiffName   string     `json:"plaintiff_name"`
	PlaintiffTaxID  string     `json:"plaintiff_tax_id"`
	DefendantName   string     `json:"defendant_name"`
	DefendantTaxID  string     `json:"defendant_tax_id"`
	RepresentedSide string     `json:"represented_side"`
	RepresentedName string     `json:"represented_name"`
	RepresentedTax  string     `json:"represented_tax_id"`
	CaseClass       string     `json:"case_class"`
	Subject         string     `json:"subject"`
	DeadlineEvent   string     `json:"deadline_event"`
	DeadlineDays    int        `json:"deadline_days"`
	NoticeSentAt    *time.Time `json:"notice_sent_at"`
	DeadlineStartAt *time.Time `json:"deadline_start_at"`
	DeadlineEndAt   *time.Time `json:"deadline_end_at"`
	RawCapture      string     `json:"raw_capture" gorm:"type:text"`
}

// Event is one row of a case's procedural history. Events are replaced
// atomically per case on every detail extraction.
type Event struct {
	gorm.Model
	Docket          string     `json:"docket" gorm:"index"`
	Seq             *int       `json:"seq"`
	Actor           string     `json:"actor"`
	OccurredAt      *time.Time `json:"occurred_at"`
	Description     string     `json:"description" gorm:"type:text"`
	AttachmentsJSON string     `json:"attachments_json" gorm:"type:text"`
	IsDeadlineEvent bool       `json:"is_deadline_event"`
	RefEvent        *int       `json:"ref_event"`
}

// Document is a persisted attachment after a successful download.
// StoragePath is deterministic and is the de-duplication key across runs.
type Document struct {
	gorm.Model
	StoragePath string     `json:"storage_path" gorm:"uniqueIndex"`
	Docket      string     `json:"docket" gorm:"index"`
	EventSeq    int        `json:"event_seq"`
	EventTime   *time.Time `json:"event_time"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	ByteSize    int64      `json:"byte_size"`
	SignedURL   string     `json:"signed_url" gorm:"type:text"`
}

// Run records one orchestrator cycle for observability
type Run struct {
	gorm.Model
	RunID        string     `json:"run_id" gorm:"uniqueIndex"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	DurationMS   int64      `json:"duration_ms"`
	Status       string     `json:"status"`
	CasesFound   int        `json:"cases_found"`
	CasesNew     int        `json:"cases_new"`
	CasesRemoved int        `json:"cases_removed"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
}

func (Case) TableName() string {
	return "cases"
}

func (Event) TableName() string {
	return "events"
}

func (Document) TableName() string {
	return "documents"
}

func (Run) TableName() string {
	return "runs"
}
