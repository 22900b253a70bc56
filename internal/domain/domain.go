package domain

// Task statuses. Transitions between them are governed by engine.IsValidTransition.
const (
	TaskDraft      = "draft"
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskVerified   = "verified"
	TaskRejected   = "rejected"
	TaskArchived   = "archived"
)

// Task types. The set is closed; anything else is rejected at creation.
const (
	TypeASR           = "asr"
	TypeTTS           = "tts"
	TypeTranscription = "transcription"
	TypeTranslation   = "translation"
	TypeValidation    = "validation"
)

// Contribution statuses.
const (
	ContributionPending    = "pending"
	ContributionSubmitted  = "submitted"
	ContributionAccepted   = "accepted"
	ContributionRejected   = "rejected"
	ContributionValidated  = "validated"
	ContributionApprovedFT = "approved_for_transcription"
)

// Project statuses. Archived doubles as the cascade-delete lock.
const (
	ProjectDraft     = "draft"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectArchived  = "archived"
)

// Membership roles.
const (
	RoleOwner       = "owner"
	RoleAdmin       = "admin"
	RoleManager     = "manager"
	RoleReviewer    = "reviewer"
	RoleContributor = "contributor"
	RoleValidator   = "validator"
)

func ValidTaskType(t string) bool {
	switch t {
	case TypeASR, TypeTTS, TypeTranscription, TypeTranslation, TypeValidation:
		return true
	}
	return false
}

func ValidRole(r string) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleManager, RoleReviewer, RoleContributor, RoleValidator:
		return true
	}
	return false
}

type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Status         string `json:"status" enum:"draft,active,completed,archived"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role" enum:"owner,admin,manager,reviewer,contributor,validator"`
	AddedAt   string `json:"added_at" format:"date-time"`
}

type Task struct {
	ID                      string  `json:"id"`
	ProjectID               string  `json:"project_id"`
	Type                    string  `json:"type" enum:"asr,tts,transcription,translation,validation"`
	Status                  string  `json:"status" enum:"draft,open,in_progress,completed,verified,rejected,archived"`
	PromptText              string  `json:"prompt_text,omitempty"`
	AssignedTo              *string `json:"assigned_to,omitempty"`
	Priority                int     `json:"priority"`
	MetadataJSON            *string `json:"metadata_json,omitempty"`
	SourceContributionID    *string `json:"source_contribution_id,omitempty"`
	CompletedContributionID *string `json:"completed_contribution_id,omitempty"`
	CurrentContributionID   *string `json:"current_contribution_id,omitempty"`
	CreatedBy               string  `json:"created_by"`
	CreatedAt               string  `json:"created_at" format:"date-time"`
	UpdatedAt               string  `json:"updated_at" format:"date-time"`
}

type Contribution struct {
	ID                string  `json:"id"`
	TaskID            string  `json:"task_id"`
	UserID            string  `json:"user_id"`
	Status            string  `json:"status"`
	StorageURL        *string `json:"storage_url,omitempty"`
	TranscriptionText *string `json:"transcription_text,omitempty"`
	TranslationText   *string `json:"translation_text,omitempty"`
	Rating            *int    `json:"rating,omitempty"`
	RejectionReason   *string `json:"rejection_reason,omitempty"`
	SubmittedAt       string  `json:"submitted_at" format:"date-time"`
	UpdatedAt         string  `json:"updated_at" format:"date-time"`
}

// Validation is an append-only review verdict; one row per review action.
type Validation struct {
	ID             string `json:"id"`
	ContributionID string `json:"contribution_id"`
	ValidatorID    string `json:"validator_id"`
	Approved       bool   `json:"approved"`
	Comment        string `json:"comment,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type FileMetadata struct {
	ID          string `json:"id"`
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	PublicURL   string `json:"public_url"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// TaskFile links an uploaded blob to a task. A link whose file_metadata row is
// gone is an orphan the integrity checker removes.
type TaskFile struct {
	TaskID    string `json:"task_id"`
	FileID    string `json:"file_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TaskStatusHistory is the append-only ground truth for task status.
type TaskStatusHistory struct {
	ID         int64  `json:"id"`
	TaskID     string `json:"task_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ChangedBy  string `json:"changed_by"`
	Note       string `json:"note,omitempty"`
	ChangedAt  string `json:"changed_at" format:"date-time"`
}

// UploadSession tracks an in-flight multi-file upload. Rows outlive process
// restarts and are pruned once expired with no pending files.
type UploadSession struct {
	ID           string `json:"id"`
	TaskID       string `json:"task_id"`
	UserID       string `json:"user_id"`
	PendingFiles int    `json:"pending_files"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	ExpiresAt    string `json:"expires_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
