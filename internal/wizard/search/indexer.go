// Package search mirrors the denormalized applicant projections into an
// Elasticsearch index so operators can find in-flight drafts by name, email
// or phone. Indexing is best-effort: a failure here never blocks a save or a
// submission.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/models"
)

type Indexer struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewIndexer(es *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "draft-search"}),
	}
}

// IndexDraft upserts the operator-facing document for one draft. The
// document carries only the search projections, never the form answers.
func (i *Indexer) IndexDraft(ctx context.Context, d *models.ApplicationDraft) error {
	doc := map[string]interface{}{
		"applicantName":  d.ApplicantName,
		"applicantEmail": d.ApplicantEmail,
		"applicantPhone": d.ApplicantPhone,
		"advisorId":      d.AdvisorID,
		"advisorName":    d.AdvisorName,
		"status":         string(d.Status),
		"currentStep":    d.CurrentStep,
		"updatedAt":      d.UpdatedAt,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal draft document: %w", err)
	}

	res, err := i.es.Index(
		i.index,
		bytes.NewReader(body),
		i.es.Index.WithDocumentID(d.ID),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index draft %s: %w", d.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index draft %s: %s", d.ID, res.Status())
	}
	return nil
}
