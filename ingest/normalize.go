package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"datasearch/dao/model"
)

var errMissingID = errors.New("record has no id")

// stringOrList accepts a JSON string or a list of strings; providers are not
// consistent about the license field shape.
type stringOrList []string

func (s *stringOrList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringOrList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = stringOrList(many)
	return nil
}

// hfRecord is the strict parse target for one raw listing item.
type hfRecord struct {
	ID           string       `json:"id"`
	Author       string       `json:"author"`
	Description  string       `json:"description"`
	Tags         []string     `json:"tags"`
	CardData     *hfCardData  `json:"cardData"`
	LastModified *time.Time   `json:"lastModified"`
	CreatedAt    *time.Time   `json:"createdAt"`
	Downloads    int64        `json:"downloads"`
	Likes        int64        `json:"likes"`
	Private      bool         `json:"private"`
	Disabled     bool         `json:"disabled"`
}

type hfCardData struct {
	PrettyName string       `json:"pretty_name"`
	License    stringOrList `json:"license"`
}

const licenseTagPrefix = "license:"

// normalizeRecord converts one parsed provider record into the canonical
// DTO. Pure; a validation failure drops only this record.
func (r *hfRecord) normalize(now time.Time) (*model.DatasetDTO, error) {
	if r.ID == "" {
		return nil, errMissingID
	}

	dto := &model.DatasetDTO{
		SourceName:    model.SourceHuggingFace,
		ExternalID:    r.ID,
		Title:         r.displayTitle(),
		URL:           "https://huggingface.co/datasets/" + r.ID,
		Description:   r.Description,
		Tags:          r.Tags,
		License:       r.license(),
		DownloadCount: r.Downloads,
		LikeCount:     r.Likes,
	}

	dto.SourceCreatedAt = r.CreatedAt
	updated := r.updateTime(now)
	dto.SourceUpdatedAt = &updated

	meta := map[string]any{"private": r.Private, "disabled": r.Disabled}
	if r.Author != "" {
		meta["author"] = r.Author
	}
	dto.SourceMeta = meta

	return dto, nil
}

// displayTitle prefers the card's pretty name and falls back to the last
// path segment of the record id.
func (r *hfRecord) displayTitle() string {
	if r.CardData != nil && r.CardData.PrettyName != "" {
		return r.CardData.PrettyName
	}
	if i := strings.LastIndex(r.ID, "/"); i >= 0 {
		return r.ID[i+1:]
	}
	return r.ID
}

// license prefers the structured card field (first element when a list) and
// falls back to a license: tag.
func (r *hfRecord) license() string {
	if r.CardData != nil && len(r.CardData.License) > 0 {
		return r.CardData.License[0]
	}
	for _, tag := range r.Tags {
		if strings.HasPrefix(tag, licenseTagPrefix) {
			return strings.TrimPrefix(tag, licenseTagPrefix)
		}
	}
	return ""
}

// updateTime prefers lastModified, then createdAt, then now. Missing
// timestamps never fail validation.
func (r *hfRecord) updateTime(now time.Time) time.Time {
	if r.LastModified != nil {
		return *r.LastModified
	}
	if r.CreatedAt != nil {
		return *r.CreatedAt
	}
	return now
}

// parseHFItem parses one raw listing item, reporting the record's
// best-effort identifier on failure.
func parseHFItem(raw json.RawMessage) (*model.DatasetDTO, error) {
	var rec hfRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		var probe struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &probe)
		id := probe.ID
		if id == "" {
			id = "unknown"
		}
		return nil, fmt.Errorf("parse record %s: %w", id, err)
	}
	dto, err := rec.normalize(time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("normalize record %q: %w", rec.ID, err)
	}
	return dto, nil
}
