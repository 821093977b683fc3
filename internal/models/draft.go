// internal/models/draft.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// DraftStatus is the lifecycle state of an application draft. The transition
// is monotonic: once submitted, the wizard never mutates the entity again.
type DraftStatus string

const (
	StatusDraft     DraftStatus = "draft"
	StatusSubmitted DraftStatus = "submitted"
)

// FirstStep and LastStep bound the application wizard.
const (
	FirstStep = 1
	LastStep  = 9
)

// FormData maps a step number (1..9) to that step's validated data object.
// Steps the applicant has not visited yet are absent from the map, not nil.
type FormData map[int]map[string]interface{}

// Clone returns a shallow-per-step copy so a snapshot handed to a remote
// write cannot be mutated by later step edits.
func (f FormData) Clone() FormData {
	out := make(FormData, len(f))
	for step, data := range f {
		stepCopy := make(map[string]interface{}, len(data))
		for k, v := range data {
			stepCopy[k] = v
		}
		out[step] = stepCopy
	}
	return out
}

// ApplicantIdentity is the denormalized projection of steps 1-2, kept on the
// entity for operator-facing search and recomputed on every save.
type ApplicantIdentity struct {
	Name  string `json:"applicantName"`
	Email string `json:"applicantEmail"`
	Phone string `json:"applicantPhone"`
}

// IdentityFromForm recomputes the applicant projection from the current form
// data. Step 1 carries the name fields, step 2 the contact fields.
func IdentityFromForm(form FormData) ApplicantIdentity {
	var id ApplicantIdentity
	if personal, ok := form[1]; ok {
		first, _ := personal["firstName"].(string)
		last, _ := personal["lastName"].(string)
		id.Name = strings.TrimSpace(fmt.Sprintf("%s %s", first, last))
	}
	if contact, ok := form[2]; ok {
		id.Email, _ = contact["email"].(string)
		id.Phone, _ = contact["phone"].(string)
	}
	return id
}

// Advisor is optional attribution carried from the referral link. It is set
// once at creation and never changed by the wizard.
type Advisor struct {
	ID    string `json:"advisorId,omitempty"`
	Name  string `json:"advisorName,omitempty"`
	Phone string `json:"advisorPhone,omitempty"`
}

// ApplicationDraft is the persisted application entity. The resume token is a
// bearer capability: anyone holding it may read or update the draft, so it is
// generated once from a cryptographically secure source and never rotated.
type ApplicationDraft struct {
	ID             string            `json:"id"`
	ResumeToken    string            `json:"resumeToken"`
	FormData       FormData          `json:"formData"`
	CurrentStep    int               `json:"currentStep"`
	Status         DraftStatus       `json:"status"`
	ApplicantName  string            `json:"applicantName,omitempty"`
	ApplicantEmail string            `json:"applicantEmail,omitempty"`
	ApplicantPhone string            `json:"applicantPhone,omitempty"`
	AdvisorID      string            `json:"advisorId,omitempty"`
	AdvisorName    string            `json:"advisorName,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Identity returns the projection fields as a single value.
func (d *ApplicationDraft) Identity() ApplicantIdentity {
	return ApplicantIdentity{
		Name:  d.ApplicantName,
		Email: d.ApplicantEmail,
		Phone: d.ApplicantPhone,
	}
}

// LocalDraftMetadata is the client-side cache record. It deliberately holds
// no personally identifying field values, only identifiers and progress
// markers, so an unencrypted client store never carries sensitive data.
type LocalDraftMetadata struct {
	DraftID        string    `json:"draftId,omitempty"`
	ResumeToken    string    `json:"resumeToken,omitempty"`
	CurrentStep    int       `json:"currentStep"`
	CompletedSteps []int     `json:"completedSteps"`
	LastSaved      time.Time `json:"lastSaved"`
	AdvisorID      string    `json:"advisorId,omitempty"`
	AdvisorName    string    `json:"advisorName,omitempty"`
}
