package filecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/logger"
)

// Columns of a content calendar export. platform and one of caption/media_urls are required.
const (
	colPlatform   = "platform"
	colCaption    = "caption"
	colHashtags   = "hashtags"
	colLink       = "link"
	colMediaURLs  = "media_urls"
	colTitle      = "title"
	colNotBefore  = "not_before"
	maxImportRows = 1000
)

// ReadPlannedItems parses a content calendar CSV with a header row into planned posts.
// hashtags and media_urls hold space or comma separated lists; not_before is RFC3339.
func ReadPlannedItems(r io.Reader) ([]model.PlannedItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: %w", model.ErrValidation)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index[colPlatform]; !ok {
		return nil, fmt.Errorf("missing %q column: %w", colPlatform, model.ErrValidation)
	}

	var items []model.PlannedItem
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, model.ErrValidation)
		}
		field := func(name string) string {
			if i, ok := index[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		if strings.Join(record, "") == "" {
			continue
		}

		platform, ok := model.ParsePlatform(field(colPlatform))
		if !ok {
			return nil, fmt.Errorf("line %d: unknown platform %q: %w", line, field(colPlatform), model.ErrValidation)
		}
		item := model.PlannedItem{
			Platform: platform,
			Kind:     model.ItemKindPost,
			Payload: model.ItemPayload{
				Title:     field(colTitle),
				Caption:   field(colCaption),
				Hashtags:  splitList(field(colHashtags)),
				Link:      field(colLink),
				MediaURLs: splitList(field(colMediaURLs)),
			},
		}
		if item.Payload.Caption == "" && len(item.Payload.MediaURLs) == 0 {
			return nil, fmt.Errorf("line %d: caption or media required: %w", line, model.ErrValidation)
		}
		if v := field(colNotBefore); v != "" {
			at, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("line %d: not_before %q: %w", line, v, model.ErrValidation)
			}
			item.NotBefore = &at
		}
		items = append(items, item)
		if len(items) > maxImportRows {
			return nil, fmt.Errorf("more than %d rows: %w", maxImportRows, model.ErrValidation)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no rows: %w", model.ErrValidation)
	}
	logger.GetLogger().WithField("rows", len(items)).Info("Content calendar parsed")
	return items, nil
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) == 0 {
		return nil
	}
	return fields
}
