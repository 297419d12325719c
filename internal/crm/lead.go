package crm

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/salesfusion/internal/qualification"
	"github.com/wolfman30/salesfusion/internal/transcripts"
)

// LeadSource marks leads created from the chat widget.
const LeadSource = "salesfusion_chat"

// LeadData is the flattened prospect, qualification and transcript record
// handed to a provider.
type LeadData struct {
	SessionID         string            `json:"sessionId"`
	Name              string            `json:"name,omitempty"`
	Email             string            `json:"email,omitempty"`
	Company           string            `json:"company,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	Title             string            `json:"title,omitempty"`
	Score             int               `json:"score"`
	ReadyToConnect    bool              `json:"readyToConnect"`
	QualifiedCriteria []string          `json:"qualifiedCriteria"`
	CriteriaStatus    map[string]string `json:"criteriaStatus"`
	Tags              []string          `json:"tags"`
	Summary           string            `json:"summary,omitempty"`
	Transcript        string            `json:"transcript"`
	Source            string            `json:"source"`
}

// Validate checks the minimum a provider needs.
func (d LeadData) Validate() error {
	if strings.TrimSpace(d.SessionID) == "" {
		return ErrInvalidLead
	}
	if strings.TrimSpace(d.Email) == "" && strings.TrimSpace(d.Name) == "" {
		return ErrInvalidLead
	}
	return nil
}

// QualificationNote renders the criteria as a note body.
func (d LeadData) QualificationNote() string {
	ids := make([]string, 0, len(d.CriteriaStatus))
	for id := range d.CriteriaStatus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Qualification score: ")
	b.WriteString(strconv.Itoa(d.Score))
	b.WriteString("/100\n")
	for _, id := range ids {
		b.WriteString("- ")
		b.WriteString(id)
		b.WriteString(": ")
		b.WriteString(d.CriteriaStatus[id])
		b.WriteString("\n")
	}
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildLeadData flattens a stored conversation.
func BuildLeadData(c transcripts.StoredConversation, schema qualification.Schema) LeadData {
	status := c.QualificationStatus
	criteria := make(map[string]string, len(status.Criteria))
	for id, cr := range status.Criteria {
		criteria[id] = string(cr.Status)
	}
	tags := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		tags = append(tags, t.ID)
	}
	qualified := status.QualifiedCriteria(schema)
	if qualified == nil {
		qualified = []string{}
	}
	data := LeadData{
		SessionID:         c.SessionID,
		Name:              c.Prospect.Name,
		Email:             c.Prospect.Email,
		Company:           c.Prospect.Company,
		Phone:             c.Prospect.Phone,
		Title:             c.Prospect.Title,
		Score:             status.Score,
		ReadyToConnect:    status.ReadyToConnect,
		QualifiedCriteria: qualified,
		CriteriaStatus:    criteria,
		Tags:              tags,
		Transcript:        c.Transcript(),
		Source:            LeadSource,
	}
	if status.AIAssessment != nil {
		data.Summary = status.AIAssessment.Summary
	}
	return data
}

// Lead is a stored CRM lead.
type Lead struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"session_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Company           string    `json:"company"`
	Phone             string    `json:"phone"`
	Title             string    `json:"title"`
	Score             int       `json:"score"`
	ReadyToConnect    bool      `json:"ready_to_connect"`
	QualifiedCriteria []string  `json:"qualified_criteria"`
	Tags              []string  `json:"tags"`
	Summary           string    `json:"summary,omitempty"`
	Source            string    `json:"source"`
	Notes             []Note    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Note is a note attached to a lead.
type Note struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Type      NoteType  `json:"type"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
